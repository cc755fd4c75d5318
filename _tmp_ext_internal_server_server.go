// Package server implements the single-threaded, cooperative UDP
// request loop: one client query is fully resolved — including any
// upstream round-trips — before the next is read off the listening
// socket, per the source's serial scheduling model. The only deviation
// from a literal single shared socket is that each upstream query the
// resolver sends uses its own fresh ephemeral socket, so the listener
// itself is never blocked waiting on an upstream answer.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/dnsscience/ripd/internal/cache"
	"github.com/dnsscience/ripd/internal/config"
	"github.com/dnsscience/ripd/internal/engine"
	"github.com/dnsscience/ripd/internal/hints"
	"github.com/dnsscience/ripd/internal/metrics"
	"github.com/dnsscience/ripd/internal/packet"
	"github.com/dnsscience/ripd/internal/pool"
	"github.com/dnsscience/ripd/internal/resolver"
)

// Server is the resolver daemon: a bound UDP listener, the resolver
// engine, the shared cache backing it, and the per-client rate limiter
// guarding the serial loop from a single noisy client.
type Server struct {
	cfg      config.Config
	conn     *net.UDPConn
	cache    *cache.Cache
	resolver *resolver.Resolver
	limiter  *engine.RateLimiter
	paths    cache.PersistPaths
}

// New builds a Server from cfg: loads or seeds the cache, and binds the
// UDP listener. It does not start serving until Serve is called.
func New(cfg config.Config) (*Server, error) {
	paths := cache.PersistPaths{ACache: cfg.ACachePath, NSCache: cfg.NSCachePath}

	c := cache.New(cache.Config{})

	rootHints, err := hints.Load(cfg.HintsPath)
	if err != nil {
		log.Printf("server: root hints unavailable (%v); relying on existing cache files", err)
	}
	if err := c.LoadOrSeed(paths, rootHints, time.Now()); err != nil {
		return nil, fmt.Errorf("server: loading cache: %w", err)
	}

	noConnPolicy := resolver.PolicyServfail
	if cfg.NoConnectivityPolicy == "fatal" {
		noConnPolicy = resolver.PolicyFatal
	}

	r := resolver.New(c, resolver.Config{
		QueryTimeout:       cfg.QueryTimeout,
		MaxSubResolveDepth: cfg.MaxSubResolveDepth,
		MaxOuterIterations: cfg.MaxOuterIterations,
		NoConnectivity:     noConnPolicy,
	})

	limiter := engine.NewRateLimiter(engine.RateLimiterConfig{
		QueriesPerSecond: cfg.RateLimitQPS,
		BurstSize:        cfg.RateLimitBurst,
		CleanupInterval:  5 * time.Minute,
	})

	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("server: resolving listen address %s: %w", cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: binding %s: %w", cfg.ListenAddr, err)
	}

	return &Server{
		cfg:      cfg,
		conn:     conn,
		cache:    c,
		resolver: r,
		limiter:  limiter,
		paths:    paths,
	}, nil
}

// Serve runs the receive loop until ctx is canceled or handleQuery
// returns an error (a Resolve error, such as no connectivity under
// PolicyFatal, or a failure to persist the cache). It always persists
// the cache before returning.
func (s *Server) Serve(ctx context.Context) error {
	if s.cfg.MetricsListenAddr != "" {
		go func() {
			log.Printf("server: metrics listening on %s", s.cfg.MetricsListenAddr)
			if err := http.ListenAndServe(s.cfg.MetricsListenAddr, metrics.Handler()); err != nil {
				log.Printf("server: metrics listener error: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.loop(ctx)
	}()

	select {
	case <-ctx.Done():
		s.conn.Close()
		<-errCh
		return s.persist()
	case err := <-errCh:
		s.conn.Close()
		persistErr := s.persist()
		if err != nil {
			return err
		}
		return persistErr
	}
}

func (s *Server) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		buf := pool.Get()
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			pool.Put(buf)
			// The only way ReadFromUDP fails on a UDP socket in
			// practice is the listener having been closed (shutdown);
			// there is nothing to recover from by retrying.
			return nil
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		pool.Put(buf)

		if err := s.handleQuery(ctx, data, from); err != nil {
			return err // resolution or persist failure: stop serving
		}
	}
}

// handleQuery processes a single client datagram to completion,
// per §4.4. A non-nil return (a Resolve error, such as no connectivity
// under PolicyFatal or a cache ingest failure, or a failure to persist
// the cache) stops the whole daemon.
func (s *Server) handleQuery(ctx context.Context, data []byte, from *net.UDPAddr) error {
	metrics.QueriesTotal.Inc()

	if !s.limiter.Allow(from.IP) {
		metrics.RateLimitedTotal.Inc()
		return nil // dropped silently, per the ambient rate limiter's design
	}

	query, err := packet.NewParser(data).Parse()
	if err != nil {
		return nil // cannot recover an ID to reply with; drop
	}

	if len(query.Question) == 0 {
		s.reply(from, query.Header.ID, packet.RcodeFormatError, nil, nil)
		return nil
	}

	start := time.Now()
	question := query.Question[0]
	rcode, answers, err := s.resolver.Resolve(ctx, question)
	metrics.ResolutionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("server: fatal resolution error for %q: %w", question.Name, err)
	}

	if rcode == packet.RcodeNoError {
		metrics.AnswersTotal.Inc()
	} else {
		metrics.ErrorsTotal.WithLabelValues(rcodeLabel(rcode)).Inc()
		if rcode == packet.RcodeNameError {
			metrics.NXDomainTotal.Inc()
		}
	}

	s.reply(from, query.Header.ID, rcode, query.Question, answers)
	return s.persist()
}

func (s *Server) reply(from *net.UDPAddr, id uint16, rcode uint8, questions []packet.Question, answers []packet.RR) {
	resp := packet.CreateResponse(id, rcode, true, true, questions, answers)
	wire, err := resp.ToBytes()
	if err != nil {
		log.Printf("server: encoding response: %v", err)
		return
	}
	if _, err := s.conn.WriteToUDP(wire, from); err != nil {
		log.Printf("server: writing response to %s: %v", from, err)
	}
}

func (s *Server) persist() error {
	if err := s.cache.Persist(s.paths, time.Now()); err != nil {
		return fmt.Errorf("server: persisting cache: %w", err)
	}
	return nil
}

func rcodeLabel(rcode uint8) string {
	switch rcode {
	case packet.RcodeFormatError:
		return "FORMAT_ERROR"
	case packet.RcodeServerFailure:
		return "SERVER_FAILURE"
	case packet.RcodeNameError:
		return "NAME_ERROR"
	case packet.RcodeNotImplemented:
		return "NOT_IMPLEMENTED"
	case packet.RcodeRefused:
		return "REFUSED"
	default:
		return "UNKNOWN"
	}
}



package cmd

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore"
	otelexport "github.com/MrEthical07/authcore/metrics/export/otel"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"
)

var (
	ltSessions    int
	ltConcurrency int
	ltOps         int
	ltRotate      bool
)

type sessionState struct {
	mu    sync.Mutex
	sid   string
	token string
}

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Measure issue, authenticate and refresh throughput",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ltSessions <= 0 || ltConcurrency <= 0 || ltOps <= 0 {
			return fmt.Errorf("sessions, concurrency, and ops must be > 0")
		}
		out := cmd.OutOrStdout()
		log := newLogger(logLevel)

		client, cleanup, err := openRedis(redisAddr, log)
		if err != nil {
			return err
		}
		defer cleanup()

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}
		cfg.Session.RotateOnRefresh = ltRotate
		cfg.RateLimit.RefreshPerMinute = 0

		users := newDirectory()
		for i := 0; i < 64; i++ {
			id := int64(1000 + i)
			users.add(authcore.Principal{
				UserID:   id,
				Subject:  "load-" + strconv.FormatInt(id, 10) + "@example.com",
				Name:     "Load " + strconv.Itoa(i),
				Role:     "user",
				Provider: authcore.ProviderLocal,
			}, "")
		}

		engine, err := authcore.New().
			WithConfig(cfg).
			WithRedis(client).
			WithUserProvider(users).
			WithLogger(log).
			WithMetricsEnabled(true).
			WithLatencyHistograms(true).
			Build()
		if err != nil {
			return fmt.Errorf("failed to build engine: %w", err)
		}
		defer engine.Close()

		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		exporter, err := otelexport.NewExporter(provider.Meter("authcore-loadtest"), engine)
		if err != nil {
			return err
		}
		defer exporter.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		states := make([]sessionState, ltSessions)
		fmt.Fprintf(out, "issuing %d sessions...\n", ltSessions)
		issueStats, err := runIssuePhase(ctx, engine, users, states, ltConcurrency)
		if err != nil {
			return err
		}

		authStats := runPhase(ltOps, ltConcurrency, states, func(state *sessionState) error {
			state.mu.Lock()
			token := state.token
			state.mu.Unlock()
			_, err := engine.Authenticate(ctx, token)
			return err
		})
		refreshStats := runPhase(ltOps, ltConcurrency, states, func(state *sessionState) error {
			state.mu.Lock()
			defer state.mu.Unlock()
			res, err := engine.Refresh(ctx, state.sid)
			if err != nil {
				return err
			}
			state.sid = res.SessionID
			state.token = res.AccessToken
			return nil
		})

		fmt.Fprintln(out, "---- results ----")
		printStats(out, "issue", issueStats)
		printStats(out, "authenticate", authStats)
		printStats(out, "refresh", refreshStats)

		return printCounters(ctx, out, reader)
	},
}

func init() {
	rootCmd.AddCommand(loadtestCmd)
	loadtestCmd.Flags().IntVar(&ltSessions, "sessions", 10000, "number of sessions to issue")
	loadtestCmd.Flags().IntVar(&ltConcurrency, "concurrency", 64, "number of concurrent workers")
	loadtestCmd.Flags().IntVar(&ltOps, "ops", 100000, "operations per phase (authenticate + refresh)")
	loadtestCmd.Flags().BoolVar(&ltRotate, "rotate", false, "rotate the session id on every refresh")
}

// runIssuePhase seeds states. The first failed issue cancels the remaining
// workers.
func runIssuePhase(ctx context.Context, engine *authcore.Engine, users *directory, states []sessionState, concurrency int) (phaseStats, error) {
	var cursor int64
	rec := newRecorder(len(states))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(states) || gctx.Err() != nil {
					return nil
				}
				p, err := users.GetUserByID(gctx, int64(1000+i%64))
				if err != nil {
					return err
				}
				t0 := time.Now()
				res, err := engine.IssueSession(gctx, p)
				rec.add(time.Since(t0), err)
				if err != nil {
					return fmt.Errorf("issue failed: %w", err)
				}
				states[i].sid = res.SessionID
				states[i].token = res.AccessToken
			}
		})
	}
	if err := g.Wait(); err != nil {
		return phaseStats{}, err
	}
	return rec.stats(time.Since(start)), nil
}

func runPhase(ops, concurrency int, states []sessionState, op func(*sessionState) error) phaseStats {
	var cursor int64
	rec := newRecorder(ops)

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]
				t0 := time.Now()
				err := op(state)
				rec.add(time.Since(t0), err)
			}
		}(w)
	}
	wg.Wait()
	return rec.stats(time.Since(start))
}

type recorder struct {
	mu        sync.Mutex
	latencies []time.Duration
	failures  int64
}

func newRecorder(capacity int) *recorder {
	return &recorder{latencies: make([]time.Duration, 0, capacity)}
}

func (r *recorder) add(d time.Duration, err error) {
	r.mu.Lock()
	r.latencies = append(r.latencies, d)
	if err != nil {
		r.failures++
	}
	r.mu.Unlock()
}

func (r *recorder) stats(total time.Duration) phaseStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return computeStats(total, r.latencies, r.failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// printCounters reads the engine's counters back through the OpenTelemetry
// exporter and prints the non-zero ones.
func printCounters(ctx context.Context, w io.Writer, reader *sdkmetric.ManualReader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if dp.Value != 0 {
					lines = append(lines, fmt.Sprintf("%s=%d", m.Name, dp.Value))
				}
			}
		}
	}
	sort.Strings(lines)

	fmt.Fprintln(w, "---- counters ----")
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/users"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadtestSecret = "loadtest-secret-loadtest-secret-0123"

type account struct {
	email   string
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		accounts    = flag.Int("accounts", 2000, "number of accounts to seed and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (verify, refresh)")
		racers      = flag.Int("racers", 8, "goroutines presenting the same refresh token in the replay phase")
		races       = flag.Int("races", 200, "number of tokens raced in the replay phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		namespace   = flag.String("namespace", "loadtest", "key namespace")
		memoryKiB   = flag.Uint("argon2-memory", 16*1024, "argon2id memory in KiB")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *racers < 2 || *races < 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency and ops must be > 0; racers must be >= 2")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = []byte(loadtestSecret)
	cfg.Session.Namespace = *namespace
	cfg.Password.Memory = uint32(*memoryKiB)
	cfg.Password.Time = 1
	cfg.Audit.Enabled = false

	dir := users.NewMemory()
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(dir).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	const password = "loadtest-password"
	hash, err := engine.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash failed: %v\n", err)
		os.Exit(1)
	}

	states := make([]*account, *accounts)
	for i := range states {
		email := fmt.Sprintf("user-%d@loadtest.local", i)
		dir.Put(authcore.UserRecord{ID: fmt.Sprintf("u-%d", i), Email: email, PasswordHash: hash, Role: "user"})
		states[i] = &account{email: email}
	}

	loginStats := runPhase(*accounts, *concurrency, func(i int, _ *rand.Rand) error {
		st := states[i]
		pair, err := engine.Login(ctx, st.email, password)
		if err != nil {
			return err
		}
		st.mu.Lock()
		st.access, st.refresh = pair.AccessToken, pair.RefreshToken
		st.mu.Unlock()
		return nil
	})

	verifyStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		st := states[r.Intn(len(states))]
		st.mu.Lock()
		token := st.access
		st.mu.Unlock()
		_, err := engine.Verify(ctx, token)
		return err
	})

	refreshStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		st := states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		pair, err := engine.Refresh(ctx, st.refresh)
		if err != nil {
			return err
		}
		st.access, st.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	winners, violations := runReplayPhase(ctx, engine, states, *races, *racers)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
	fmt.Printf("replay: races=%d racers=%d winners=%d violations=%d\n", *races, *racers, winners, violations)
	fmt.Printf("audit dropped: %d\n", engine.AuditDropped())

	if violations > 0 {
		os.Exit(1)
	}
}

// runReplayPhase presents each raced refresh token from several goroutines at
// once. Exactly one presentation may succeed; every other one must be
// rejected as revoked.
func runReplayPhase(ctx context.Context, engine *authcore.Engine, states []*account, races, racers int) (winners, violations int64) {
	if races > len(states) {
		races = len(states)
	}
	for i := 0; i < races; i++ {
		st := states[i]
		st.mu.Lock()
		token := st.refresh
		st.mu.Unlock()

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			won   int64
			bad   int64
		)
		for g := 0; g < racers; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := engine.Refresh(ctx, token)
				switch {
				case err == nil:
					atomic.AddInt64(&won, 1)
				case !errors.Is(err, authcore.ErrTokenRevoked):
					atomic.AddInt64(&bad, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		winners += won
		if won != 1 || bad != 0 {
			violations++
		}
	}
	return winners, violations
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

func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
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
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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

// Command bulk-codes mints a batch of gift codes for one recipient through the
// admin RPC, then checks that the store holds exactly what was minted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/time/rate"

	"github.com/kkkkikiki/infestor/internal/rpc/giftcodev1"
)

// RunResult gathers aggregated numbers for the run.
// LatencySum and P95Latency are in nanoseconds.
type RunResult struct {
	TotalRequests int64
	SuccessCount  int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

// Config is read from BULK_* environment variables
type Config struct {
	AdminURL   string        `env:"ADMIN_URL,default=http://localhost:8080"`
	AdminToken string        `env:"ADMIN_TOKEN,required"`
	CreatedFor string        `env:"CREATED_FOR,required"`
	Count      int64         `env:"COUNT,default=100"`
	Workers    int           `env:"WORKERS,default=8"`
	RPS        float64       `env:"RPS,default=20"`
	Timeout    time.Duration `env:"TIMEOUT,default=10s"`
}

func main() {
	ctx := context.Background()

	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("BULK_", envconfig.OsLookuper()),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Workers * 2,
			MaxIdleConnsPerHost: cfg.Workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.Timeout,
	}
	client := giftcodev1.NewGiftCodeServiceClient(httpClient, cfg.AdminURL,
		connect.WithInterceptors(giftcodev1.NewAuthInterceptor(cfg.AdminToken)))

	existing, err := countCodes(ctx, client, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list existing codes: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("==========================================")
	fmt.Printf("recipient      : %s\n", cfg.CreatedFor)
	fmt.Printf("existing codes : %d\n", existing)
	fmt.Printf("codes to mint  : %d\n", cfg.Count)
	fmt.Printf("rate           : %.1f/s\n", cfg.RPS)
	fmt.Println("==========================================")

	burst := int(cfg.RPS) / cfg.Workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), burst)

	var (
		result    RunResult
		remaining = cfg.Count
		wg        sync.WaitGroup
		codesMu   sync.Mutex
		codes     = make([]string, 0, cfg.Count)
	)

	latencies := make(chan time.Duration, 1024)
	done := make(chan struct{})
	go func() {
		trackP95(latencies, &result)
		close(done)
	}()

	start := time.Now()
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for atomic.AddInt64(&remaining, -1) >= 0 {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				if code, ok := mint(ctx, client, cfg, &result, latencies); ok {
					codesMu.Lock()
					codes = append(codes, code)
					codesMu.Unlock()
				}
			}
		}()
	}

	wg.Wait()
	close(latencies)
	<-done
	elapsed := time.Since(start)

	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}

	fmt.Printf("elapsed        : %.2fs\n", elapsed.Seconds())
	fmt.Printf("requests       : %d\n", result.TotalRequests)
	fmt.Printf("minted         : %d\n", result.SuccessCount)
	fmt.Printf("failed         : %d\n", result.ErrorCount)
	fmt.Printf("avg latency    : %v\n", avgLatency)
	fmt.Printf("p95 latency    : %v\n", time.Duration(result.P95Latency))
	fmt.Println("==========================================")

	if err := verify(ctx, client, cfg, existing+result.SuccessCount, codes); err != nil {
		fmt.Fprintf(os.Stderr, "verification failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("store matches the minted codes")

	for _, code := range codes {
		fmt.Println(code)
	}
}

// mint performs a single AddGiftCode call and collects timings
func mint(parent context.Context, client giftcodev1.GiftCodeServiceClient, cfg Config, result *RunResult, latencies chan<- time.Duration) (string, bool) {
	ctx, cancel := context.WithTimeout(parent, cfg.Timeout)
	defer cancel()

	req := connect.NewRequest(&giftcodev1.AddGiftCodeRequest{CreatedFor: cfg.CreatedFor})

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	resp, err := client.AddGiftCode(ctx, req)
	latency := time.Since(start)

	if err != nil || resp.Msg.GiftCode == nil || resp.Msg.GiftCode.Code == "" {
		atomic.AddInt64(&result.ErrorCount, 1)
		return "", false
	}

	atomic.AddInt64(&result.SuccessCount, 1)
	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	select {
	case latencies <- latency:
	default:
	}
	return resp.Msg.GiftCode.Code, true
}

// trackP95 keeps a rolling P95 estimate over a bounded sample
func trackP95(latencies <-chan time.Duration, result *RunResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
			buf[idx] = lat.Nanoseconds()
		}

		if len(buf)%100 == 0 || len(buf) < 100 {
			sorted := slices.Clone(buf)
			slices.Sort(sorted)
			i := int(float64(len(sorted)) * 0.95)
			if i >= len(sorted) {
				i = len(sorted) - 1
			}
			atomic.StoreInt64(&result.P95Latency, sorted[i])
		}
	}
}

func countCodes(ctx context.Context, client giftcodev1.GiftCodeServiceClient, cfg Config) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	resp, err := client.ListGiftCodes(ctx, connect.NewRequest(&giftcodev1.ListGiftCodesRequest{
		CreatedFor: cfg.CreatedFor,
	}))
	if err != nil {
		return 0, err
	}
	return int64(len(resp.Msg.GiftCodes)), nil
}

// verify checks the store count and that every minted code is still valid
func verify(ctx context.Context, client giftcodev1.GiftCodeServiceClient, cfg Config, expected int64, minted []string) error {
	actual, err := countCodes(ctx, client, cfg)
	if err != nil {
		return fmt.Errorf("failed to list codes: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("count mismatch: store=%d expected=%d", actual, expected)
	}

	for _, code := range minted {
		rctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		resp, err := client.GetGiftCode(rctx, connect.NewRequest(&giftcodev1.GetGiftCodeRequest{Code: code}))
		cancel()
		if err != nil {
			return fmt.Errorf("failed to get %s: %w", code, err)
		}
		if !resp.Msg.GiftCode.Valid {
			return fmt.Errorf("%s is no longer valid", code)
		}
	}
	return nil
}

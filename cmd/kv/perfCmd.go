package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/smap/cmd/util"
	"github.com/ValentinKolb/smap/lib/smap"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for smap servers",
		Long:    "Runs a set of benchmarks against the map. Every thread uses its own client (and connection).",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfBulkEntries      = 10_000
	perfSkip             = make([]string, 0)

	// latencies of every benchmark, one timer per test
	perfTimers = gometrics.NewRegistry()
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads (and clients) to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "bulk-entries"
	perfTestCmd.Flags().Int(key, 10_000, util.WrapString("How many entries the putAll and entries tests transfer"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfBulkEntries = viper.GetInt("bulk-entries")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfTest is a single benchmark. op is called with the client of the calling thread
// and a counter that is unique per thread.
type perfTest struct {
	name    string
	prepare func(m *smap.Map[string, string], keys []string) error
	op      func(m *smap.Map[string, string], key string, counter int) error
}

func runPerf(_ *cobra.Command, _ []string) error {
	config := util.GetClientConfig()

	fmt.Println("Performance testing tool for smap servers")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	// one client per thread, the first one is also used for preparation and cleanup
	clients := make(chan *smap.Map[string, string], perfNumThreads)
	for i := 0; i < perfNumThreads; i++ {
		m, err := dialPerfClient()
		if err != nil {
			return err
		}
		defer m.Close()
		clients <- m
	}

	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	bulk := make(map[string]string, perfBulkEntries)
	for i := 0; i < perfBulkEntries; i++ {
		bulk[fmt.Sprintf("%s-bulk-%d", perfKeyPrefix, i)] = "some value=" + strconv.Itoa(i)
	}

	fill := func(m *smap.Map[string, string], keys []string) error {
		entries := make(map[string]string, len(keys))
		for _, k := range keys {
			entries[k] = "test"
		}
		return m.PutAll(entries)
	}

	tests := []perfTest{
		{name: "put", op: func(m *smap.Map[string, string], key string, _ int) error {
			_, _, err := m.Put(key, "test")
			return err
		}},
		{name: "put-large", op: func(m *smap.Map[string, string], key string, _ int) error {
			_, _, err := m.Put(key, largeValue)
			return err
		}},
		{name: "get", prepare: fill, op: func(m *smap.Map[string, string], key string, _ int) error {
			_, _, err := m.Get(key)
			return err
		}},
		{name: "remove", prepare: fill, op: func(m *smap.Map[string, string], key string, _ int) error {
			_, _, err := m.Remove(key)
			return err
		}},
		{name: "has", prepare: fill, op: func(m *smap.Map[string, string], key string, _ int) error {
			_, err := m.ContainsKey(key)
			return err
		}},
		{name: "has-not", op: func(m *smap.Map[string, string], key string, _ int) error {
			_, err := m.ContainsKey(key + "-missing")
			return err
		}},
		{name: "size", op: func(m *smap.Map[string, string], _ string, _ int) error {
			_, err := m.Size()
			return err
		}},
		{name: "mixed", prepare: fill, op: func(m *smap.Map[string, string], key string, counter int) error {
			var err error
			switch counter % 4 {
			case 0:
				_, _, err = m.Put(key, "test")
			case 1:
				_, _, err = m.Get(key)
			case 2:
				_, _, err = m.Remove(key)
			case 3:
				_, err = m.ContainsKey(key)
			}
			return err
		}},
		{name: "putAll", op: func(m *smap.Map[string, string], _ string, _ int) error {
			return m.PutAll(bulk)
		}},
		{name: "entries", prepare: func(m *smap.Map[string, string], _ []string) error {
			return m.PutAll(bulk)
		}, op: func(m *smap.Map[string, string], _ string, _ int) error {
			_, err := m.EntrySet().Len()
			return err
		}},
	}

	fmt.Println("starting tests...")
	results := make(map[string]testing.BenchmarkResult)
	for _, test := range tests {
		if shouldSkip(test.name) {
			printResult(test.name, testing.BenchmarkResult{})
			continue
		}
		results[test.name] = runPerfTest(test, clients)
		printResult(test.name, results[test.name])
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

func runPerfTest(test perfTest, clients chan *smap.Map[string, string]) testing.BenchmarkResult {
	timer := gometrics.GetOrRegisterTimer(test.name, perfTimers)
	keys := getKeys(test.name)

	return testing.Benchmark(func(b *testing.B) {
		admin := <-clients
		clients <- admin

		if test.prepare != nil {
			if err := test.prepare(admin, keys); err != nil {
				log.Printf("(%s) - error preparing test: %v\n", test.name, err)
			}
		}
		b.Cleanup(func() {
			if err := admin.Clear(); err != nil {
				log.Printf("(%s) - error cleaning up: %v\n", test.name, err)
			}
		})

		// goroutines beyond the number of clients wait for a free one
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			m := <-clients
			defer func() { clients <- m }()

			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := test.op(m, keys[counter%len(keys)], counter); err != nil {
					log.Printf("(%s) - error: %v\n", test.name, err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func dialPerfClient() (*smap.Map[string, string], error) {
	s, err := util.GetSerializer()
	if err != nil {
		return nil, err
	}
	t, err := util.GetClientTransport()
	if err != nil {
		return nil, err
	}
	return smap.Dial(util.GetClientConfig(), util.GetMapID(), smap.String(), smap.String(),
		smap.WithTransport(t), smap.WithSerializer(s))
}

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// getKeys creates the test keys of one benchmark
func getKeys(prefix string) []string {
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}
	return keys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	p := latencies(test)
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, p[0], p[1])
}

// latencies returns the p50 and p99 latency of a single operation of the test
func latencies(test string) [2]time.Duration {
	timer, ok := perfTimers.Get(test).(gometrics.Timer)
	if !ok {
		return [2]time.Duration{}
	}
	ps := timer.Snapshot().Percentiles([]float64{0.5, 0.99})
	return [2]time.Duration{time.Duration(ps[0]), time.Duration(ps[1])}
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	config := util.GetClientConfig()

	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P99",
		"Endpoint", "TimeoutSec", "RetryCount", "ChunkBytes",
		"MapID", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count", "Bulk Entries",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		nsPerOp := math.Max(float64(result.NsPerOp()), 1)
		p := latencies(test)

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			p[0].String(),
			p[1].String(),
			config.Endpoint,
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ChunkBytes),
			strconv.FormatUint(util.GetMapID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfBulkEntries),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}

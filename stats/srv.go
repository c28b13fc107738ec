package stats

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type FileStats struct {
	ReadBytes  uint64 `json:"read-bytes"`
	WriteBytes uint64 `json:"write-bytes"`
	OpenCount  uint64 `json:"open-count"`
	ListCount  uint64 `json:"list-count"`
}

type Stats struct {
	ReadBytes      uint64 `json:"read-bytes"`
	WriteBytes     uint64 `json:"write-bytes"`
	OpenCount      uint64 `json:"open-count"`
	ListCount      uint64 `json:"list"`
	MkdirCount     uint64 `json:"mkdir"`
	RequestCount   uint64 `json:"requests"`
	TimeoutCount   uint64 `json:"timeouts"`
	ProtocolErrors uint64 `json:"protocol-errors"`
	RetryCount     uint64 `json:"retries"`

	Files map[string]FileStats `json:"files"`
}

var (
	// Mutex to protect concurrent access to stats
	statsMutex sync.RWMutex
	stats      = &Stats{Files: make(map[string]FileStats)}
)

func AddReadBytes(name string, cnt uint64) {
	statsMutex.Lock()
	defer statsMutex.Unlock()
	stats.ReadBytes += cnt

	f := stats.Files[name]
	f.ReadBytes += cnt
	stats.Files[name] = f

	bytesTotal.WithLabelValues("read").Add(float64(cnt))
}

func AddWriteBytes(name string, cnt uint64) {
	statsMutex.Lock()
	defer statsMutex.Unlock()
	stats.WriteBytes += cnt

	f := stats.Files[name]
	f.WriteBytes += cnt
	stats.Files[name] = f

	bytesTotal.WithLabelValues("write").Add(float64(cnt))
}

func AddOpen(name string) {
	statsMutex.Lock()
	defer statsMutex.Unlock()
	stats.OpenCount++

	f := stats.Files[name]
	f.OpenCount++
	stats.Files[name] = f

	opsTotal.WithLabelValues("open").Inc()
}

func AddList(name string) {
	statsMutex.Lock()
	defer statsMutex.Unlock()
	stats.ListCount++

	f := stats.Files[name]
	f.ListCount++
	stats.Files[name] = f

	opsTotal.WithLabelValues("list").Inc()
}

func AddMkdir(name string) {
	statsMutex.Lock()
	defer statsMutex.Unlock()
	stats.MkdirCount++

	opsTotal.WithLabelValues("mkdir").Inc()
}

// AddRequest records one completed wire round trip.
func AddRequest(cmd string, d time.Duration, timedOut bool, failed bool) {
	statsMutex.Lock()
	defer statsMutex.Unlock()
	stats.RequestCount++
	if timedOut {
		stats.TimeoutCount++
	}

	result := "ok"
	switch {
	case timedOut:
		result = "timeout"
	case failed:
		result = "error"
	}
	requestsTotal.WithLabelValues(cmd, result).Inc()
	requestDuration.WithLabelValues(cmd).Observe(d.Seconds())
}

func AddProtocolError() {
	statsMutex.Lock()
	defer statsMutex.Unlock()
	stats.ProtocolErrors++

	protocolErrors.Inc()
}

func AddRetry(op string) {
	statsMutex.Lock()
	defer statsMutex.Unlock()
	stats.RetryCount++

	retriesTotal.WithLabelValues(op).Inc()
}

// Snapshot returns a copy of the current counters.
func Snapshot() Stats {
	statsMutex.RLock()
	defer statsMutex.RUnlock()

	s := *stats
	s.Files = make(map[string]FileStats, len(stats.Files))
	for k, v := range stats.Files {
		s.Files[k] = v
	}
	return s
}

func Reset() {
	statsMutex.Lock()
	defer statsMutex.Unlock()
	stats = &Stats{Files: make(map[string]FileStats)}
}

// Handler serves the JSON counters at "/", a reset endpoint at "/reset" and
// the prometheus registry at "/metrics".
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", statsHandler)
	mux.HandleFunc("/reset", resetHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	return mux
}

func StatServer(addr string) {
	log.Infof("stats server listening on %s", addr)
	if err := http.ListenAndServe(addr, Handler()); err != nil {
		log.Errorf("stats server: %v", err)
	}
}

func statsHandler(w http.ResponseWriter, r *http.Request) {
	statsMutex.RLock()
	defer statsMutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func resetHandler(w http.ResponseWriter, r *http.Request) {
	Reset()

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Stats reset successfully!"))
}

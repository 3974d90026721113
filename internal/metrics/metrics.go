// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blinklabs-io/hashledger/internal/config"
	"github.com/blinklabs-io/hashledger/internal/logging"
)

var (
	hashesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hashledger_hashes_processed_total",
		Help: "The total number of hashes processed",
	})
	recordsMined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hashledger_records_mined_total",
		Help: "The total number of records mined",
	})
	miningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hashledger_mining_duration_seconds",
		Help:    "Time spent searching for a valid nonce",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	chainLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hashledger_chain_length",
		Help: "The number of records in the ledger, including genesis",
	})
)

func GetHashes() prometheus.Counter {
	return hashesProcessed
}

func GetRecordsMined() prometheus.Counter {
	return recordsMined
}

func GetMiningDuration() prometheus.Histogram {
	return miningDuration
}

func GetChainLength() prometheus.Gauge {
	return chainLength
}

// Start serves the Prometheus handler when a listen port is configured
func Start() error {
	cfg := config.GetConfig()
	if cfg.Metrics.ListenPort == 0 {
		return nil
	}
	logger := logging.GetLogger()
	listenAddr := fmt.Sprintf(
		"%s:%d",
		cfg.Metrics.ListenAddress,
		cfg.Metrics.ListenPort,
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 60 * time.Second,
	}
	logger.Infof("starting metrics listener on %s", listenAddr)
	go func() {
		if err := server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics listener failed: %s", err)
		}
	}()
	return nil
}

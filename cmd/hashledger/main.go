// Copyright 2023 Blink Labs Software
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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"
	"gopkg.in/yaml.v2"

	"github.com/blinklabs-io/hashledger/internal/config"
	"github.com/blinklabs-io/hashledger/internal/ledger"
	"github.com/blinklabs-io/hashledger/internal/logging"
	"github.com/blinklabs-io/hashledger/internal/metrics"
	"github.com/blinklabs-io/hashledger/internal/version"
)

var cmdlineFlags struct {
	configFile string
	tamper     bool
	dump       bool
}

type sampleRecord struct {
	timestamp string
	payload   map[string]any
}

var sampleRecords = []sampleRecord{
	{
		timestamp: "2018-09-19",
		payload:   map[string]any{"amount": 4, "sender": "Jesse", "receiver": "Yan"},
	},
	{
		timestamp: "2018-09-20",
		payload:   map[string]any{"amount": 10, "sender": "Yan", "receiver": "Jesse"},
	},
	{
		timestamp: "2018-09-30",
		payload:   map[string]any{"amount": 100, "sender": "Justin", "receiver": "AOL"},
	},
}

func main() {
	flag.StringVar(&cmdlineFlags.configFile, "config", "", "path to config file to load")
	flag.BoolVar(&cmdlineFlags.tamper, "tamper", false, "modify a mined record afterward and re-check the chain")
	flag.BoolVar(&cmdlineFlags.dump, "dump", false, "print the chain as YAML when done")
	flag.Parse()

	// Load config
	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %s\n", err)
		os.Exit(1)
	}

	// Configure logging
	logging.Setup()
	logger := logging.GetLogger()
	// Sync logger on exit
	defer func() {
		if err := logger.Sync(); err != nil {
			// We don't actually care about the error here, but we have to do something
			// to appease the linter
			return
		}
	}()

	logger.Infof("hashledger %s started", version.GetVersionString())

	// Configure max processes with our logger wrapper, toss undo func
	_, err = maxprocs.Set(maxprocs.Logger(logger.Infof))
	if err != nil {
		// If we hit this, something really wrong happened
		logger.Errorf("failed to set GOMAXPROCS: %s", err)
		os.Exit(1)
	}

	if err := metrics.Start(); err != nil {
		logger.Errorf("failed to start metrics listener: %s", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	l, err := ledger.NewWithConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	logger.Infof(
		"created ledger with difficulty %d using %s",
		l.Difficulty(),
		cfg.Ledger.HashAlgorithm,
	)

	for _, sample := range sampleRecords {
		rec, err := l.NewRecord(sample.timestamp, sample.payload)
		if err != nil {
			return err
		}
		logger.Infof("mining record %d...", rec.Index)
		if err := l.Append(ctx, rec); err != nil {
			return err
		}
	}
	logger.Infof("chain valid: %t", l.IsValid())

	if cmdlineFlags.tamper {
		tamper(l, logger)
	}

	if cmdlineFlags.dump {
		out, err := yaml.Marshal(l.Records())
		if err != nil {
			return fmt.Errorf("failed to encode chain: %w", err)
		}
		fmt.Print(string(out))
	}
	return nil
}

// tamper changes a mined payload, then rehashes it, showing that the break
// moves to the next record's link instead of disappearing
func tamper(l *ledger.Ledger, logger *logging.Logger) {
	rec, err := l.Get(1)
	if err != nil {
		logger.Warnf("nothing to tamper with: %s", err)
		return
	}
	payload, ok := rec.Payload.(map[string]any)
	if !ok {
		logger.Warnf("unexpected payload type %T", rec.Payload)
		return
	}
	payload["amount"] = 999
	logger.Infof("changed record 1 amount to 999")
	if err := l.Verify(); err != nil {
		logger.Infof("chain valid: false (%s)", err)
	} else {
		logger.Infof("chain valid: true")
	}
	if err := rec.RefreshHash(); err != nil {
		logger.Warnf("failed to rehash record 1: %s", err)
		return
	}
	logger.Infof("recomputed record 1 hash: %s", rec.Hash)
	if err := l.Verify(); err != nil {
		logger.Infof("chain valid: false (%s)", err)
	} else {
		logger.Infof("chain valid: true")
	}
}

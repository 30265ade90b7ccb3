// Copyright (C) 2017-2020  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// You can also Link and Combine this program with other software covered by
// the terms of any of the Free Software licenses or any of the Open Source
// Initiative approved licenses and Convey the resulting work. Corresponding
// source of such a combination shall include the source code for all other
// software used.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

package connd

import (
	"os"
	"strconv"
	"time"
)

// DefaultMaxBatchSize mirrors the Bolt connection driver's
// FeatureToggles.getInteger(BoltServer.class, "max_batch_size", 100): a
// process-wide default, not something re-read per connection.
const DefaultMaxBatchSize = 100

// DefaultIdleValidationInterval is how long waitForJobs parks before
// calling StateMachine.ValidateTransaction again.
const DefaultIdleValidationInterval = 10 * time.Second

// Config holds the process-wide tunables read once at startup. It is
// shared by every Driver a process constructs, matching the static
// FeatureToggles semantics it mirrors rather than a per-connection value
// threaded in from scratch.
type Config struct {
	MaxBatchSize           int
	IdleValidationInterval time.Duration
}

// DefaultConfig returns Config populated with the built-in defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:           DefaultMaxBatchSize,
		IdleValidationInterval: DefaultIdleValidationInterval,
	}
}

// ConfigFromEnv reads overrides from the environment once, at process
// start, rather than from a re-readable source. Unset or malformed values
// fall back to the default silently.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if s := os.Getenv("CONND_MAX_BATCH_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.MaxBatchSize = n
		}
	}
	if s := os.Getenv("CONND_IDLE_VALIDATION_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			cfg.IdleValidationInterval = d
		}
	}

	return cfg
}

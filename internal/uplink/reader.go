// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package uplink

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// maxFrameSize bounds a single line of the stream.
const maxFrameSize = 1 << 20

// Read decodes frames from r and passes them to h until r is exhausted.
// Lines that are not valid frames are logged and skipped. A line longer
// than maxFrameSize is discarded up to its newline and reading continues.
// It returns nil on a clean EOF.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func Read(r io.Reader, h Handler, logger zerolog.Logger) error {
	br := bufio.NewReaderSize(r, 64*1024)
	line := make([]byte, 0, 64*1024)
	oversized := false

	for {
		chunk, err := br.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > maxFrameSize+1 {
				oversized = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err != nil && !errors.Is(err, io.EOF):
			return fmt.Errorf("read uplink: %w", err)
		}

		if oversized {
			logger.Warn().Int("limit", maxFrameSize).Msg("Skipping oversized uplink frame")
			oversized = false
		} else {
			dispatch(bytes.TrimRight(line, "\r\n"), h, logger)
		}
		line = line[:0]

		if err != nil {
			return nil
		}
	}
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func dispatch(line []byte, h Handler, logger zerolog.Logger) {
	if len(line) == 0 {
		return
	}
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		logger.Warn().Err(err).Int("bytes", len(line)).Msg("Skipping malformed uplink frame")
		return
	}
	if !f.Valid() {
		logger.Warn().Str("type", string(f.Type)).Msg("Skipping invalid uplink frame")
		return
	}
	h.HandleFrame(f)
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kagent-dev/pipohost/internal/host"
)

// stream feeds one frame per input line into the host and writes every
// output frame as a line of its time followed by its values. Blank lines and
// lines starting with # are skipped.
func stream(r io.Reader, w io.Writer, h *host.Host) error {
	out := bufio.NewWriter(w)
	var writeErr error
	h.OnFrame(func(time float64, frame []float32) {
		if writeErr != nil {
			return
		}
		writeErr = writeFrame(out, time, frame)
	})

	size := h.Input().Size()
	period := 1000.0 / h.Input().Rate
	scanner := bufio.NewScanner(r)
	n := 0
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		frame, err := parseFrame(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(frame) != size {
			return fmt.Errorf("line %d: expected %d values, got %d", lineNo, size, len(frame))
		}
		if err := h.Frames(float64(n)*period, 1, frame, 1); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read frames: %w", err)
	}

	if err := h.Finalize(float64(n) * period); err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}
	return out.Flush()
}

func parseFrame(line string) ([]float32, error) {
	fields := strings.Fields(line)
	frame := make([]float32, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", field)
		}
		frame[i] = float32(v)
	}
	return frame, nil
}

func writeFrame(w io.Writer, time float64, frame []float32) error {
	fields := make([]string, 0, len(frame)+1)
	fields = append(fields, strconv.FormatFloat(time, 'g', -1, 64))
	for _, v := range frame {
		fields = append(fields, strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	_, err := fmt.Fprintln(w, strings.Join(fields, " "))
	return err
}

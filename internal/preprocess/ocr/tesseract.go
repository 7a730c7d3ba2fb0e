package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
)

// TesseractName identifies the Tesseract recognizer.
const TesseractName = "tesseract"

// Tesseract defaults: LSTM engine, single uniform block of text.
const (
	DefaultTesseractBin  = "tesseract"
	DefaultTesseractLang = "eng"
	DefaultTesseractPSM  = 6
)

// Runner executes a command with stdin and returns its stdout.
type Runner func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// TesseractConfig controls the Tesseract CLI invocation.
type TesseractConfig struct {
	Bin  string
	Lang string
	PSM  int
}

// Tesseract is the fast, local recognizer. It shells out to the tesseract
// CLI and reads its TSV output.
type Tesseract struct {
	cfg TesseractConfig
	run Runner
}

// NewTesseract builds a Tesseract recognizer. A nil runner uses ExecRunner.
func NewTesseract(cfg TesseractConfig, run Runner) *Tesseract {
	if cfg.Bin == "" {
		cfg.Bin = DefaultTesseractBin
	}
	if cfg.Lang == "" {
		cfg.Lang = DefaultTesseractLang
	}
	if cfg.PSM <= 0 {
		cfg.PSM = DefaultTesseractPSM
	}
	if run == nil {
		run = ExecRunner
	}
	return &Tesseract{cfg: cfg, run: run}
}

// Name implements Recognizer.
func (t *Tesseract) Name() string { return TesseractName }

// Recognize implements Recognizer. Confidence is the mean word confidence.
// An image without words is a successful read with empty text.
func (t *Tesseract) Recognize(ctx context.Context, img *image.Gray) Result {
	data, err := encodePNG(img)
	if err != nil {
		return failed(TesseractName, err)
	}
	args := []string{
		"stdin", "stdout",
		"--oem", "3",
		"--psm", strconv.Itoa(t.cfg.PSM),
		"-l", t.cfg.Lang,
		"tsv",
	}
	out, err := t.run(ctx, t.cfg.Bin, args, data)
	if err != nil {
		return failed(TesseractName, fmt.Errorf("run tesseract: %w", err))
	}
	text, confidence, err := parseTSV(out)
	if err != nil {
		return failed(TesseractName, err)
	}
	if text == "" {
		return Result{Engine: TesseractName, Success: true}
	}
	return Result{Text: text, Confidence: confidence, Engine: TesseractName, Success: true}
}

// tsv columns: level page_num block_num par_num line_num word_num left top
// width height conf text.
const tsvColumns = 12

// parseTSV joins the recognized words line by line and averages their
// confidence, rescaled from [0, 100] to [0, 1].
func parseTSV(out []byte) (string, float64, error) {
	var (
		lines    []string
		current  []string
		lineKey  string
		sum      float64
		words    int
		sawTable bool
	)
	for _, row := range strings.Split(string(out), "\n") {
		row = strings.TrimRight(row, "\r")
		cols := strings.Split(row, "\t")
		if len(cols) < tsvColumns {
			continue
		}
		if cols[0] == "level" {
			sawTable = true
			continue
		}
		if cols[0] != "5" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil {
			return "", 0, fmt.Errorf("parse tesseract confidence %q: %w", cols[10], err)
		}
		word := strings.TrimSpace(strings.Join(cols[11:], "\t"))
		if conf < 0 || word == "" {
			continue
		}
		key := cols[2] + "." + cols[3] + "." + cols[4]
		if key != lineKey && len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = nil
		}
		lineKey = key
		current = append(current, word)
		sum += conf
		words++
	}
	if !sawTable {
		return "", 0, errors.New("tesseract output is not tsv")
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	if words == 0 {
		return "", 0, nil
	}
	return strings.Join(lines, "\n"), min(max(sum/float64(words)/100, 0), 1), nil
}

package heuristics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/kt-search/internal/core/usecase"
)

// Load returns the default tables with any values from the YAML file laid
// over them. Lists in the file replace the default list entirely. An empty
// path yields the defaults.
func Load(path string) (usecase.Heuristics, error) {
	h := usecase.DefaultHeuristics()
	if strings.TrimSpace(path) == "" {
		return h, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return usecase.Heuristics{}, fmt.Errorf("read heuristics file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (usecase.Heuristics, error) {
	h := usecase.DefaultHeuristics()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil && !errors.Is(err, io.EOF) {
		return usecase.Heuristics{}, fmt.Errorf("decode heuristics yaml: %w", err)
	}
	if err := h.Validate(); err != nil {
		return usecase.Heuristics{}, fmt.Errorf("validate heuristics: %w", err)
	}
	return h, nil
}

package main

import (
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/pkg/models"
)

// batchEntry is one pair in a merge-batch file:
//
//	- absorber_id: 6f1c...
//	  absorbee_id: 0b7e...
//	  forward: false
//	  deactivate: true
type batchEntry struct {
	AbsorberID string `yaml:"absorber_id"`
	AbsorbeeID string `yaml:"absorbee_id"`
	Forward    *bool  `yaml:"forward"`
	Deactivate bool   `yaml:"deactivate"`
}

var batchValidate = validator.New()

// parseBatch reads and validates every pair before any merge runs, so a typo
// halfway through a file does not leave it half applied.
func parseBatch(r io.Reader, defaultForward bool) ([]models.MergeRequest, error) {
	var entries []batchEntry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("batch file is empty")
		}
		return nil, errors.Wrap(err, "decode batch file")
	}
	if len(entries) == 0 {
		return nil, errors.New("batch file is empty")
	}

	requests := make([]models.MergeRequest, 0, len(entries))
	for i, entry := range entries {
		req := models.MergeRequest{
			AbsorberID: entry.AbsorberID,
			AbsorbeeID: entry.AbsorbeeID,
			Forward:    defaultForward,
			Deactivate: entry.Deactivate,
		}
		if entry.Forward != nil {
			req.Forward = *entry.Forward
		}
		if err := batchValidate.Struct(req); err != nil {
			return nil, errors.Wrapf(err, "entry %d", i+1)
		}
		requests = append(requests, req)
	}
	return requests, nil
}

package storage

import (
	"encoding/json"
	"errors"

	"spikegen/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned stamps a record with the current schema and codec versions.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeLayout(l model.LayoutRecord) ([]byte, error) {
	return json.Marshal(l)
}

func DecodeLayout(data []byte) (model.LayoutRecord, error) {
	var layout model.LayoutRecord
	if err := json.Unmarshal(data, &layout); err != nil {
		return model.LayoutRecord{}, err
	}
	if err := checkVersion(layout.VersionedRecord); err != nil {
		return model.LayoutRecord{}, err
	}
	return layout, nil
}

func EncodeLayouts(layouts []model.LayoutRecord) ([]byte, error) {
	return json.Marshal(layouts)
}

func DecodeLayouts(data []byte) ([]model.LayoutRecord, error) {
	var layouts []model.LayoutRecord
	if err := json.Unmarshal(data, &layouts); err != nil {
		return nil, err
	}
	for _, layout := range layouts {
		if err := checkVersion(layout.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return layouts, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

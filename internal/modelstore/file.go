package modelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"reclink/internal/failure"
	"reclink/internal/fileutil"
	"reclink/internal/linkage"
	"reclink/internal/logging"
)

const trainingDocumentVersion = 1

type trainingDocument struct {
	Version  int                      `json:"version"`
	Examples []linkage.LabeledExample `json:"examples"`
}

// FileStore keeps the training set and settings in two files.
type FileStore struct {
	trainingPath string
	settingsPath string
	codec        linkage.ModelCodec
	fields       []linkage.FieldSpec
	logger       *slog.Logger
}

// NewFileStore returns a file-backed store. Nothing is touched on disk until
// the first save.
func NewFileStore(trainingPath, settingsPath string, opts Options) *FileStore {
	return &FileStore{
		trainingPath: trainingPath,
		settingsPath: settingsPath,
		codec:        opts.Codec,
		fields:       opts.Fields,
		logger:       storeLogger(opts.Logger, "file"),
	}
}

func (s *FileStore) HasSettings(ctx context.Context) (bool, error) {
	info, err := os.Stat(s.settingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat settings: %w", err)
	}
	return !info.IsDir(), nil
}

func (s *FileStore) LoadSettings(ctx context.Context) (linkage.TrainedModel, error) {
	data, err := os.ReadFile(s.settingsPath)
	if err != nil {
		return nil, failure.Wrap(failure.ErrCorruptSettings, "store", "load settings", s.settingsPath, err)
	}
	model, err := decodeSettings(s.codec, s.fields, s.settingsPath, data)
	if err != nil {
		return nil, err
	}
	s.logger.Info("settings loaded",
		logging.String("path", s.settingsPath),
		logging.Int("examples", model.Examples()),
		logging.String(logging.FieldEventType, "settings_loaded"),
	)
	return model, nil
}

func (s *FileStore) LoadTrainingExamples(ctx context.Context) ([]linkage.LabeledExample, error) {
	file, err := os.Open(s.trainingPath)
	if errors.Is(err, fs.ErrNotExist) {
		return []linkage.LabeledExample{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open training file: %w", err)
	}
	defer file.Close()

	var doc trainingDocument
	if err := json.NewDecoder(file).Decode(&doc); err != nil {
		return nil, failure.Wrap(failure.ErrMalformedInput, "store", "load training", s.trainingPath, err)
	}
	if doc.Version != trainingDocumentVersion {
		return nil, failure.Wrap(failure.ErrMalformedInput, "store", "load training",
			fmt.Sprintf("%s: unsupported version %d", s.trainingPath, doc.Version), nil)
	}
	if err := validateExamples(doc.Examples); err != nil {
		return nil, failure.Wrap(failure.ErrMalformedInput, "store", "load training", s.trainingPath, err)
	}
	if doc.Examples == nil {
		doc.Examples = []linkage.LabeledExample{}
	}
	s.logger.Debug("training examples loaded", logging.Int("examples", len(doc.Examples)))
	return doc.Examples, nil
}

func (s *FileStore) SaveTrainingExamples(ctx context.Context, examples []linkage.LabeledExample) error {
	if err := validateExamples(examples); err != nil {
		return failure.Wrap(nil, "store", "save training", s.trainingPath, err)
	}
	doc := trainingDocument{Version: trainingDocumentVersion, Examples: examples}
	if doc.Examples == nil {
		doc.Examples = []linkage.LabeledExample{}
	}
	err := fileutil.WriteFileAtomic(s.trainingPath, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	})
	if err != nil {
		return failure.Wrap(nil, "store", "save training", s.trainingPath, err)
	}
	s.logger.Info("training examples saved",
		logging.String("path", s.trainingPath),
		logging.Int("examples", len(examples)),
		logging.String(logging.FieldEventType, "training_saved"),
	)
	return nil
}

func (s *FileStore) SaveSettings(ctx context.Context, model linkage.TrainedModel) error {
	data, err := s.codec.SerializeModel(model)
	if err != nil {
		return failure.Wrap(nil, "store", "save settings", "serialize model", err)
	}
	err = fileutil.WriteFileAtomic(s.settingsPath, 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return failure.Wrap(nil, "store", "save settings", s.settingsPath, err)
	}
	s.logger.Info("settings saved",
		logging.String("path", s.settingsPath),
		logging.Int("examples", model.Examples()),
		logging.String(logging.FieldEventType, "settings_saved"),
	)
	return nil
}

func (s *FileStore) ClearTrainingExamples(ctx context.Context) error {
	if err := os.Remove(s.trainingPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove training file: %w", err)
	}
	return nil
}

func (s *FileStore) Location() string {
	return fmt.Sprintf("training=%s settings=%s", s.trainingPath, s.settingsPath)
}

func (s *FileStore) Close() error { return nil }

func validateExamples(examples []linkage.LabeledExample) error {
	for i, ex := range examples {
		if !ex.Judgment.Recordable() {
			return fmt.Errorf("example %d: judgment %q cannot be recorded", i, ex.Judgment)
		}
	}
	return nil
}

package config

const (
	defaultWorkDir        = "."
	defaultLeftFile       = "data-input/left.csv"
	defaultRightFile      = "data-input/right.csv"
	defaultOutputFile     = "data-output/data_matching_output.csv"
	defaultTrainingFile   = "data-training/data_matching_training.json"
	defaultSettingsFile   = "data-training/data_matching_learned_settings"
	defaultDatabaseFile   = "data-training/reclink.db"
	defaultEncoding       = "utf-8"
	defaultOutputFormat   = "csv"
	defaultStoreBackend   = "file"
	defaultThreshold      = 0.5
	defaultSampleSize     = 15000
	defaultMaxBlockSize   = 200
	defaultMinTokenLength = 2
	defaultAutosaveEvery  = 10
	defaultLogFormat      = "console"
	defaultLogLevel       = "warn"
)

// Default returns a Config populated with all built-in defaults. Fields are
// left empty; every project declares its own.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:      defaultWorkDir,
			LeftFile:     defaultLeftFile,
			RightFile:    defaultRightFile,
			OutputFile:   defaultOutputFile,
			TrainingFile: defaultTrainingFile,
			SettingsFile: defaultSettingsFile,
			DatabaseFile: defaultDatabaseFile,
		},
		Input:  Input{Encoding: defaultEncoding},
		Output: Output{Format: defaultOutputFormat},
		Store:  Store{Backend: defaultStoreBackend},
		Linkage: Linkage{
			Threshold:      defaultThreshold,
			SampleSize:     defaultSampleSize,
			MaxBlockSize:   defaultMaxBlockSize,
			MinTokenLength: defaultMinTokenLength,
		},
		Labeling: Labeling{AutosaveEvery: defaultAutosaveEvery},
		Condense: Condense{
			DropColumns: []string{"ID", "ADDRESS_1", "ADDRESS_2", "CITY", "STATE", "ZIPCODE", "PHONE"},
		},
		Logging: Logging{Format: defaultLogFormat, Level: defaultLogLevel},
	}
}

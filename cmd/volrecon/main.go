// Command volrecon trains, validates and exports the volumetric
// reconstruction model.
//
//	volrecon -mode train -train_dir data/train -val_dir data/val -save_path runs/a
//	volrecon -mode test -test_dir data/test -save_path runs/a -subdir sweep1
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"

	"github.com/tsawler/go-volrecon/checkpoints"
	"github.com/tsawler/go-volrecon/engine"
	"github.com/tsawler/go-volrecon/export"
	"github.com/tsawler/go-volrecon/optimizer"
	"github.com/tsawler/go-volrecon/training"
	"github.com/tsawler/go-volrecon/vision/dataset"
)

type options struct {
	mode       string
	configPath string
	savePath   string
	trainDir   string
	valDir     string
	valSplit   float64
	testDir    string
	subdir     string
	optimizer  string
	lr         float64
	lrStep     int
	lrGamma    float64
	beta1      float64
	beta2      float64
	epochs     int
	batchSize  int
	cacheSize  int
	format     string
	aux        bool
	preview    bool
	verbose    bool
	seed       int64
	s3         export.S3Config
}

func parseFlags() options {
	var o options
	s3 := export.DefaultS3Config()
	flag.StringVar(&o.mode, "mode", "train", "train or test")
	flag.StringVar(&o.configPath, "config", "", "JSON run configuration")
	flag.StringVar(&o.savePath, "save_path", "", "directory for checkpoints, logs and results")
	flag.StringVar(&o.trainDir, "train_dir", "", "training volume folder")
	flag.StringVar(&o.valDir, "val_dir", "", "validation volume folder")
	flag.Float64Var(&o.valSplit, "val_split", 0, "fraction of train_dir held out when val_dir is empty")
	flag.StringVar(&o.testDir, "test_dir", "", "test volume folder")
	flag.StringVar(&o.subdir, "subdir", "", "result subdirectory for test mode")
	flag.StringVar(&o.optimizer, "optimizer", "adam", "adam or sgd")
	flag.Float64Var(&o.lr, "lr", 1e-4, "learning rate")
	flag.IntVar(&o.lrStep, "lr_step", 0, "epochs between learning rate decays (0 keeps the configured value)")
	flag.Float64Var(&o.lrGamma, "lr_gamma", 0, "learning rate decay factor (0 keeps the configured value)")
	flag.Float64Var(&o.beta1, "beta1", 0.9, "Adam beta1")
	flag.Float64Var(&o.beta2, "beta2", 0.999, "Adam beta2")
	flag.IntVar(&o.epochs, "epochs", 0, "exclusive epoch bound (0 keeps the configured value)")
	flag.IntVar(&o.batchSize, "batch", 1, "batch size")
	flag.IntVar(&o.cacheSize, "cache", 0, "decoded volumes kept in memory per dataset")
	flag.StringVar(&o.format, "format", "", "checkpoint format: proto or json")
	flag.BoolVar(&o.aux, "aux", false, "add the auxiliary classification loss")
	flag.BoolVar(&o.preview, "preview", false, "write PNG previews next to test results")
	flag.BoolVar(&o.verbose, "verbose", false, "log training progress")
	flag.Int64Var(&o.seed, "seed", 1, "shuffle seed")
	flag.StringVar(&s3.Bucket, "s3_bucket", "", "mirror test results to this bucket")
	flag.StringVar(&s3.Prefix, "s3_prefix", "", "key prefix for uploaded results")
	flag.StringVar(&s3.Region, "s3_region", s3.Region, "bucket region")
	flag.Parse()
	o.s3 = s3
	return o
}

// buildConfig layers command line flags over the JSON configuration.
func buildConfig(o options) (training.Config, error) {
	config := training.DefaultConfig()
	if o.configPath != "" {
		var err error
		if config, err = training.LoadConfig(o.configPath); err != nil {
			return config, err
		}
	}
	if o.savePath != "" {
		config.SavePath = o.savePath
	}
	if o.epochs > 0 {
		config.Epochs = o.epochs
	}
	if o.lrStep > 0 {
		config.LRStep = o.lrStep
	}
	if o.lrGamma > 0 {
		config.LRGamma = o.lrGamma
	}
	if o.format != "" {
		format, err := checkpoints.ParseCheckpointFormat(o.format)
		if err != nil {
			return config, err
		}
		config.Format = format
	}
	config.AuxiliaryLoss = config.AuxiliaryLoss || o.aux
	config.Preview = config.Preview || o.preview
	config.Verbose = config.Verbose || o.verbose
	return config, config.Validate()
}

func buildOptimizer(o options, model engine.Model) (optimizer.Optimizer, error) {
	switch o.optimizer {
	case "adam":
		config := optimizer.DefaultAdamConfig()
		config.LearningRate = o.lr
		config.Beta1 = o.beta1
		config.Beta2 = o.beta2
		return optimizer.NewAdamOptimizer(config, model.Parameters())
	case "sgd":
		config := optimizer.DefaultSGDConfig()
		config.LearningRate = o.lr
		return optimizer.NewSGDOptimizer(config, model.Parameters())
	default:
		return nil, errors.Errorf("unknown optimizer %q", o.optimizer)
	}
}

func logHardware(logger training.Logger) {
	logger.Write("CPU: %s, %d cores, AVX2:%v AVX512:%v",
		cpuid.CPU.BrandName,
		cpuid.CPU.PhysicalCores,
		cpuid.CPU.Supports(cpuid.AVX2),
		cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ))
}

func run(ctx context.Context, o options) error {
	config, err := buildConfig(o)
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	logger, err := training.NewRunLogger(filepath.Join(config.SavePath, "log.txt"), config.Verbose)
	if err != nil {
		return err
	}
	defer logger.Close()
	logHardware(logger)

	modelConfig := engine.DefaultReconModelConfig()
	model, err := engine.NewReconModel(modelConfig)
	if err != nil {
		return errors.Wrap(err, "failed to build model")
	}
	opt, err := buildOptimizer(o, model)
	if err != nil {
		return err
	}

	trainer, err := training.NewTrainer(config, model, opt, training.NewMSELoss("mean"), training.NewMSELoss("mean"), logger)
	if err != nil {
		return err
	}
	if _, err := trainer.Resume(); err != nil {
		return err
	}
	logger.Write("Run %s starting at epoch %d", trainer.Session().RunID, trainer.Session().StartEpoch)

	rng := rand.New(rand.NewSource(o.seed))
	switch o.mode {
	case "train":
		trainLoader, valLoader, err := trainLoaders(o, rng)
		if err != nil {
			return err
		}
		return trainer.Train(ctx, trainLoader, valLoader)

	case "test":
		if o.testDir == "" {
			return errors.New("test mode needs -test_dir")
		}
		ds, err := dataset.NewVolumeFolderDataset(o.testDir, false, o.cacheSize)
		if err != nil {
			return err
		}
		if o.s3.Enabled() {
			uploader, err := export.NewS3Uploader(o.s3)
			if err != nil {
				return err
			}
			trainer.SetUploader(uploader)
		}
		return trainer.Test(ctx, training.NewDataLoader(ds, o.batchSize, false, nil), o.subdir)

	default:
		return errors.Errorf("unknown mode %q", o.mode)
	}
}

func trainLoaders(o options, rng *rand.Rand) (*training.DataLoader, *training.DataLoader, error) {
	if o.trainDir == "" {
		return nil, nil, errors.New("train mode needs -train_dir")
	}
	trainSet, err := dataset.NewVolumeFolderDataset(o.trainDir, true, o.cacheSize)
	if err != nil {
		return nil, nil, err
	}

	var train, val training.Dataset = trainSet, nil
	switch {
	case o.valDir != "":
		valSet, err := dataset.NewVolumeFolderDataset(o.valDir, true, o.cacheSize)
		if err != nil {
			return nil, nil, err
		}
		val = valSet
	case o.valSplit > 0:
		trainSplit, valSplit, err := training.SplitDataset(trainSet, o.valSplit, rng)
		if err != nil {
			return nil, nil, err
		}
		train, val = trainSplit, valSplit
	}

	trainLoader := training.NewDataLoader(train, o.batchSize, true, rng)
	if val == nil {
		return trainLoader, nil, nil
	}
	return trainLoader, training.NewDataLoader(val, o.batchSize, false, nil), nil
}

func main() {
	o := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o); err != nil {
		stop()
		log.Fatalf("volrecon: %v", err)
	}
}

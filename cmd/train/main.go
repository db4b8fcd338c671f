package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"linfit/dataset"
	"linfit/sgd"
)

func main() {
	csvPath := flag.String("csv", "", "load observations from a x,y csv file instead of generating")
	n := flag.Int("n", 30, "number of generated observations")
	bias := flag.Float64("bias", 30, "true bias of the generated data")
	weight := flag.Float64("weight", 2, "true weight of the generated data")
	noise := flag.Float64("noise", 0, "gaussian noise stddev for generated data")
	seed := flag.Int64("seed", 1, "generation seed")
	initBias := flag.Float64("init_bias", 0, "initial bias")
	initWeight := flag.Float64("init_weight", 0, "initial weight")
	lr := flag.Float64("lr", 0.0001, "learning rate")
	epochs := flag.Int("epochs", 4000, "number of epochs")
	every := flag.Int("every", 500, "print every Nth epoch")
	modelPath := flag.String("model_path", "", "optional path to save the fitted model as JSON")
	flag.Parse()

	data, err := loadData(*csvPath, *n, *bias, *weight, *noise, *seed)
	if err != nil {
		log.Fatalf("failed to load data: %v", err)
	}
	data, stats := dataset.Clean(data)
	if stats.Rejected > 0 {
		log.Printf("dropped %d invalid rows", stats.Rejected)
	}

	init := sgd.Parameters{Bias: *initBias, Weight: *initWeight}
	history, err := sgd.Train(data, init, *lr, *epochs)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}

	printHistory(history, *every, len(data))

	if *modelPath != "" {
		model, err := sgd.NewLinearModel(history)
		if err != nil {
			log.Fatalf("failed to build model: %v", err)
		}
		if dir := filepath.Dir(*modelPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Fatalf("failed to create model dir: %v", err)
			}
		}
		if err := model.Save(*modelPath); err != nil {
			log.Fatalf("failed to save model: %v", err)
		}
		log.Printf("model saved to %s", *modelPath)
	}
}

func loadData(csvPath string, n int, bias, weight, noise float64, seed int64) ([]sgd.Observation, error) {
	if csvPath != "" {
		return dataset.ReadCSV(csvPath)
	}
	return dataset.Linear(dataset.GenerateConfig{
		N:      n,
		Bias:   bias,
		Weight: weight,
		Noise:  noise,
		Seed:   seed,
	})
}

func printHistory(history sgd.History, every, observations int) {
	if every <= 0 {
		every = 1
	}

	p := message.NewPrinter(language.English)
	p.Printf("%8s  %12s  %12s  %14s\n", "epoch", "bias", "weight", "loss")
	for i, rec := range history {
		if rec.Epoch%every != 0 && i != len(history)-1 {
			continue
		}
		p.Printf("%8d  %12.6f  %12.6f  %14.6f\n", rec.Epoch, rec.End.Bias, rec.End.Weight, rec.Loss)
	}

	final := history.Final()
	p.Printf("\nfinal model: y = %.4f + %.4f*x after %d epochs (%d parameter updates)\n",
		final.Bias, final.Weight, len(history), len(history)*observations)
}

package main

import (
	"flag"
	"fmt"
	"io"
	"log"

	"dsqdata/abc"
	"dsqdata/reader"
	"dsqdata/writer"
	"dsqdata/writer/fixtures"
)

var (
	shouldSeed     *bool
	seedNumRecords *int
	noCount        *bool
	dnaFlag        *bool
	rnaFlag        *bool
	aminoFlag      *bool
	ncpu           *int
)

func setupFlags() {
	shouldSeed = flag.Bool("seed", false, "Generate a synthetic database using records created with go-faker, instead of reading one that already exists.")
	seedNumRecords = flag.Int("records", 1000, "Amount of records to seed a generated database with.")
	noCount = flag.Bool("n", false, "Skip residue counting: only walk the chunk stream.")
	dnaFlag = flag.Bool("dna", false, "Use the DNA alphabet when seeding, and expect it when reading.")
	rnaFlag = flag.Bool("rna", false, "Use the RNA alphabet when seeding, and expect it when reading.")
	aminoFlag = flag.Bool("amino", true, "Use the protein alphabet when seeding, and expect it when reading (default).")
	ncpu = flag.Int("ncpu", 4, "Number of concurrent consumers.")
	flag.Usage = func() {
		fmt.Println("\ndsqdata demo\n\nArguments:")
		flag.PrintDefaults()
	}
	flag.Parse()
}

func chosenAlphabet() abc.Kind {
	switch {
	case *dnaFlag:
		return abc.DNA
	case *rnaFlag:
		return abc.RNA
	default:
		return abc.Protein
	}
}

func main() {
	setupFlags()
	basename := flag.Arg(0)
	if basename == "" {
		flag.Usage()
		log.Fatal("missing <basename> argument")
	}

	kind := chosenAlphabet()
	a, err := abc.New(kind)
	if err != nil {
		log.Fatal(err)
	}

	if *shouldSeed {
		src := fixtures.New(*seedNumRecords, a, 500)
		if err := writer.Write(src, basename, a); err != nil {
			log.Fatalf("writing synthetic database: %v", err)
		}
		log.Printf("wrote %d synthetic %s records to %s", *seedNumRecords, kind, basename)
		return
	}

	r, err := reader.Open(basename, *ncpu, a, reader.DefaultConfig)
	if err != nil {
		log.Fatalf("opening dsqdata database: %v", err)
	}
	defer r.Close()

	var counts [32]int64
	var total int64
	for {
		c, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("reading dsqdata database: %v", err)
		}
		if !*noCount {
			for i := 0; i < c.N; i++ {
				residues, _, _, _, _ := c.Seq(i)
				for _, code := range residues {
					counts[code]++
					total++
				}
			}
		}
		r.Recycle(c)
	}

	if !*noCount {
		for code, n := range counts {
			if n > 0 {
				fmt.Printf("%2d  %d\n", code, n)
			}
		}
		fmt.Printf("Total = %d\n", total)
	}
}

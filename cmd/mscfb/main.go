package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mashles/openmcdf"
)

func main() {
	stat := flag.Bool("stat", false, "print a summary of the file's layout instead of listing its entries")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mscfb [-stat] <file>")
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()

	cf, err := mscfb.Open(f, mscfb.ReadOnly, mscfb.OpenOptions{Validation: mscfb.ValidationPermissive})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cf.Close()

	if *stat {
		s, err := cf.Stat()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("version:           %s\n", s.Version)
		fmt.Printf("sector size:       %d\n", s.SectorSize)
		fmt.Printf("sector count:      %d\n", s.SectorCount)
		fmt.Printf("directory entries: %d\n", s.DirectoryEntries)
		fmt.Printf("free sectors:      %d\n", s.FreeSectors)
		fmt.Printf("free mini sectors: %d\n", s.FreeMiniSectors)
		return
	}

	err = cf.RootStorage().Visit(func(item mscfb.Item) (bool, error) {
		fmt.Printf("%-10s %10d  %s\n", item.Type, item.Size, item.Path)
		return false, nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

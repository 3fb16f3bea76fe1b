package main

import (
	"flag"
	"fmt"
	"go/ast"
	"log"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/BarrensZeppelin/reachdefs"
	"github.com/BarrensZeppelin/reachdefs/internal/maps"
	"github.com/BarrensZeppelin/reachdefs/pkgutil"
	"golang.org/x/tools/go/packages"
)

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var dir = flag.String("dir", "", "alternative directory to run the go build tool in")
var funcs = flag.String("funcs", "", "comma-separated function names to dump (default: all)")

func main() {
	flag.Parse()

	if flag.NArg() == 0 {
		log.Fatal("Specify a package query on the command line")
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				log.Fatal("Failed to close", f)
			}
		}()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	var wanted map[string]struct{}
	if *funcs != "" {
		wanted = maps.FromKeys(strings.Split(*funcs, ","))
	}

	pkgs, err := pkgutil.LoadPackagesWithConfig(&packages.Config{
		Mode:  pkgutil.LoadMode,
		Tests: false,
		Dir:   *dir,
	}, flag.Args()...)

	if err != nil {
		log.Fatalf("Loading packages failed: %v", err)
	}

	log.Printf("Loaded %d packages", len(pkgs))

	for _, pkg := range pkgs {
		var fns []*ast.FuncDecl
		for _, file := range pkg.Syntax {
			for _, decl := range file.Decls {
				if fn, ok := decl.(*ast.FuncDecl); ok {
					fns = append(fns, fn)
				}
			}
		}

		res := reachdefs.Analyze(reachdefs.AnalysisConfig{
			Info:  pkg.TypesInfo,
			Funcs: fns,
		})

		for _, fn := range fns {
			if wanted != nil {
				if _, ok := wanted[fn.Name.Name]; !ok {
					continue
				}
			}

			exit := res.ExitRDs(fn)
			if exit == nil {
				continue
			}

			fmt.Printf("%s.%s (exit):\n", pkg.PkgPath, fn.Name.Name)
			exit.Dump()
			fmt.Println()
		}
	}
}

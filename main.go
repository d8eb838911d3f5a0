// Command structured-ot merges two concurrent operations over a JSON
// document: it decodes both, rebases each against the other in
// conflictless mode, and prints the converged result of either order.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/collabkit/structured-ot/ot"
)

func main() {
	docPath := flag.String("doc", "", "path to the JSON document")
	aPath := flag.String("a", "", "path to the first encoded operation")
	bPath := flag.String("b", "", "path to the second encoded operation")
	flag.Parse()

	if *docPath == "" || *aPath == "" || *bPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	doc := readJSON(*docPath)
	a := readOp(*aPath)
	b := readOp(*bPath)

	aPrime, bPrime, ok := ot.Rebase(a, b, ot.ConflictlessWith(doc))
	if !ok {
		log.Fatalf("rebase conflict between %s and %s", a.Inspect(), b.Inspect())
	}

	merged, err := ot.Compose(a, bPrime).Apply(doc)
	if err != nil {
		log.Fatalf("apply merged operation: %v", err)
	}
	check, err := ot.Compose(b, aPrime).Apply(doc)
	if err != nil {
		log.Fatalf("apply merged operation (converse order): %v", err)
	}
	if !ot.Equal(merged, check) {
		log.Fatalf("merge diverged: %v vs %v", merged, check)
	}

	fmt.Printf("a:  %s\n", a.Inspect())
	fmt.Printf("b:  %s\n", b.Inspect())
	fmt.Printf("a': %s\n", aPrime.Inspect())
	fmt.Printf("b': %s\n", bPrime.Inspect())

	out, err := json.Marshal(merged)
	if err != nil {
		log.Fatalf("encode merged document: %v", err)
	}
	fmt.Printf("merged: %s\n", out)
}

func readJSON(path string) any {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		log.Fatalf("parse %s: %v", path, err)
	}
	return v
}

func readOp(path string) ot.Operation {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	op, err := ot.Decode(data)
	if err != nil {
		log.Fatalf("parse %s: %v", path, err)
	}
	return op
}

package printf

import "fmt"

func shutdown() {
	fmt.Printf("%d stale", "three") // want "fmt.Printf format %d has arg \"three\" of wrong type string"
}

func recorded() {
	fmt.Printf("%s %s recorded", "a.go") // want "fmt.Printf format %s reads arg #2, but call has 1 arg"
}

func ready() {
	fmt.Printf("%s", "ready")  // OK
	fmt.Printf("%d files", 42) // OK
}

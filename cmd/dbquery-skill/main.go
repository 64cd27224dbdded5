// cmd/dbquery-skill/main.go
package main

func main() {
	Execute()
}

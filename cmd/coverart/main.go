// Command coverart resolves, caches and serves album artwork.
package main

func main() {
	Execute()
}

package main

import "github.com/ValentinKolb/smap/cmd"

func main() {
	cmd.Execute()
}

package main

import "tenancy-backend/cmd"

func main() {
	cmd.Run()
}

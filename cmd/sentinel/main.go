package main

import "github.com/sentinelops/cloud-cost-sentinel/internal/cli"

func main() {
	cli.Execute()
}

package main

import (
	"github.com/MuxYang/ncmbot/cmd"
)

func main() {
	cmd.Execute()
}

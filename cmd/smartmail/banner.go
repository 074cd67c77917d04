package main

import (
	"fmt"
	"io"
)

var bannerArt = []string{
	"                  ____.----.",
	"        ____.----'          \\",
	"        \\                    \\",
	"         \\                    \\",
	"          \\                    \\",
	"           \\          ____.----'`--.__",
	"            \\___.----'          |     `--.____",
	"           /`-._                |       __.-' \\",
	"          /     `-._            ___.---'       \\",
	"         /          `-.____.---'                \\",
	"        /            / | \\                       \\",
	"       /            /  |  \\                   _.--'",
	"       `-.         /   |   \\            __.--'",
	"          `-._    /    |    \\     __.--'     |",
	"            | `-./     |     \\_.-'           |",
	"            |          |                     |",
	"            |          |                     |",
	"            |          |                     |",
	"            |          |                     |",
	"            |          |                     |   VK",
	"            |          |                     |",
	"     _______|          |                     |_______________",
	"            `-.        |                  _.-'",
	"               `-.     |           __..--'",
	"                  `-.  |      __.-'",
	"                     `-|__.--'",
}

func printBanner(w io.Writer) {
	for _, line := range bannerArt {
		fmt.Fprintln(w, line)
	}
	fmt.Fprint(w, "\nWelcome to smartmail!\n\n")
}

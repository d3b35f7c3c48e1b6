package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Run   RunCommand   `command:"run" description:"Start hand teleoperation"`
	Setup SetupCommand `command:"setup" description:"Scan for arms and calibrate them"`
	Info  InfoCommand  `command:"info" description:"Show configured arms and their current joint angles"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "handteleop - hand-tracking teleoperation for dual 7-DOF arms with 3-finger effectors"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

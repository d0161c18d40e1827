package main

import "github.com/daichitakahashi/condvar/cmd/viewevents/app"

func main() {
	app.Run()
}

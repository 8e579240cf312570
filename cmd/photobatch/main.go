// Команда photobatch - пакетная конвертация изображений.
package main

import "github.com/artemshloyda/photobatch/internal/cli"

func main() {
	cli.Execute()
}

package cmd

import (
	"fmt"
	"io"
)

const banner = `
  ____  _             ____       _                
 |  _ \| | __ _ _   _|  _ \ __ _| | __ _  ___ ___ 
 | |_) | |/ _` + "`" + ` | | | | |_) / _` + "`" + ` | |/ _` + "`" + ` |/ __/ _ \
 |  __/| | (_| | |_| |  __/ (_| | | (_| | (_|  __/
 |_|   |_|\__,_|\__, |_|   \__,_|_|\__,_|\___\___|
                |___/                             
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Development Server - Version %s\x1b[0m\n\n", Version)
}

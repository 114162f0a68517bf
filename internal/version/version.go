/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package version

import (
	"fmt"
	"io"
	"os"
	"runtime"
)

var (
	GitCommit, Version string
)

func Release() string {
	if Version == "" {
		return "dev"
	}

	return Version
}

func Commit() string {
	return GitCommit
}

func Banner() string {
	return `
        _    _    __ _ _ _
  _ __ | | _| |_ / _(_) | |_ ___ _ __
 | '_ \| |/ / __| |_| | | __/ _ \ '__|
 | |_) |   <| |_|  _| | | ||  __/ |
 | .__/|_|\_\\__|_| |_|_|\__\___|_|
 |_|
 `
}

func color() bool {
	noColor, ok := os.LookupEnv("NO_COLOR")
	return !ok || (noColor != "1" && noColor != "true")
}

// Print writes the banner and build information to w.
func Print(w io.Writer) {
	if color() {
		_, _ = fmt.Fprintf(w, "\033[34m%s\033[0m\n", Banner())
	} else {
		_, _ = fmt.Fprintf(w, "%s\n", Banner())
	}
	_, _ = fmt.Fprintf(w, "Release: %s\n", Release())
	_, _ = fmt.Fprintf(w, "Commit:  %s\n", Commit())
	_, _ = fmt.Fprintf(w, "Go:      %s\n", runtime.Version())
}

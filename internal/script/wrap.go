package script

import "fmt"

// wrapPreamble supplies the package clause, the curated import set
// every script may use without writing its own imports, and the
// function signature the fragment's body is inlined into. Each import
// is referenced once via a blank var so an unused fragment import never
// fails compilation.
const wrapPreamble = `package main

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	_ = json.Marshal
	_ = fmt.Sprintf
	_ = math.Abs
	_ = regexp.MustCompile
	_ = strconv.Itoa
	_ = strings.ToUpper
	_ = time.Now
)

func Run(input map[string]interface{}) (result interface{}) {
`

const wrapPostamble = `
	return result
}
`

// wrap embeds a script fragment into a complete, parseable Go source
// file for the validator and the sandbox interpreter.
func wrap(source string) string {
	return fmt.Sprintf("%s%s%s", wrapPreamble, source, wrapPostamble)
}

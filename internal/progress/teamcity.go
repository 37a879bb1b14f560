package progress

import (
	"fmt"
	"io"
	"strings"
)

var teamCityEscaper = strings.NewReplacer(
	"|", "||",
	"'", "|'",
	"\n", "|n",
	"\r", "|r",
	"[", "|[",
	"]", "|]",
	"\u0085", "|x",
	"\u2028", "|l",
	"\u2029", "|p",
)

// TeamCity emits TeamCity service messages so build logs fold by block.
type TeamCity struct {
	W io.Writer
}

func (t *TeamCity) Report(message string) {
	fmt.Fprintf(t.W, "##teamcity[message text='%s']\n", teamCityEscaper.Replace(message))
}

func (t *TeamCity) BeginBlock(name string) {
	fmt.Fprintf(t.W, "##teamcity[blockOpened name='%s']\n", teamCityEscaper.Replace(name))
}

func (t *TeamCity) EndBlock(name string) {
	fmt.Fprintf(t.W, "##teamcity[blockClosed name='%s']\n", teamCityEscaper.Replace(name))
}

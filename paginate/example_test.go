package paginate_test

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/simp-lee/republish/layout"
	"github.com/simp-lee/republish/paginate"
	"github.com/simp-lee/republish/sched"
)

func ExampleTraversal() {
	doc, err := html.Parse(strings.NewReader("<p>aaaa bbbb cccc dddd eeee</p>"))
	if err != nil {
		log.Fatal(err)
	}
	body := doc.FirstChild.LastChild

	// Ten cells wide, two lines tall.
	surface := layout.NewSurface(layout.CellMetrics{}, 10, 2, layout.Options{})
	loop := sched.NewVirtual(time.Now())

	paginate.New(body, surface.Acquire(), paginate.Options{}).Start(context.Background(), loop,
		func(p *paginate.Page) { fmt.Printf("%d: %s\n", p.Index(), p.HTML()) },
		func(err error) { fmt.Println("done:", err) })
	loop.Drain()
	// Output:
	// 0: <p>aaaa bbbb cccc dddd </p>
	// 1: <p>eeee</p>
	// done: <nil>
}

package wampclient_test

import (
	"context"
	"log"

	"github.com/frol/wampclient"
	"github.com/frol/wampclient/wamp"
)

func ExampleClient() {
	ctx := context.Background()
	cfg := wampclient.DefaultConfig()
	cfg.URL = "ws://127.0.0.1:8000/ws"

	c, err := wampclient.Connect(ctx, cfg)
	if err != nil {
		log.Fatal("Error connecting:", err)
	}
	go c.Run(ctx)
	defer c.Close()

	if _, err := c.Join(ctx, "realm1", nil); err != nil {
		log.Fatal(err)
	}
	res, err := c.Call(ctx, "com.demo.echo", wamp.List{wamp.String("hello")}, nil)
	if err != nil {
		log.Fatal(err)
	}
	log.Println(wamp.Raw(res.Arguments))
}

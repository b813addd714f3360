// Command secureep-echo-client dials secureep-echo-server, sends one
// message, prints whatever comes back, and exits.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/bifurcation/secureendpoint"
	"github.com/bifurcation/secureendpoint/framer/aead"
	"github.com/bifurcation/secureendpoint/internal/demo"
	"github.com/bifurcation/secureendpoint/internal/wrapped"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4443", "address to dial")
	psk := flag.String("psk", "secureendpoint-demo-psk", "pre-shared passphrase used to derive frame keys")
	zeroCopy := flag.Bool("zero-copy", false, "use the zero-copy framer instead of the copying framer")
	message := flag.String("message", "hello over a secure endpoint", "message to send")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := buildLogger(*debug)
	defer logger.Sync()

	clientToServer, serverToClient, err := demo.DeriveKeys(*psk)
	if err != nil {
		logger.Fatal("derive keys", zap.Error(err))
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}

	label := "client:" + conn.RemoteAddr().String()
	var framer secureendpoint.Framer
	if *zeroCopy {
		framer, err = aead.NewZeroCopy(clientToServer[:], serverToClient[:], 0)
	} else {
		framer, err = aead.NewCopying(clientToServer[:], serverToClient[:], 0)
	}
	if err != nil {
		logger.Fatal("build framer", zap.Error(err))
	}

	ep, err := secureendpoint.New(secureendpoint.Config{
		Framer:  framer,
		Wrapped: wrapped.New(conn, logger, label),
		Logger:  logger,
		Label:   label,
	})
	if err != nil {
		logger.Fatal("new endpoint", zap.Error(err))
	}
	defer ep.Destroy()

	src := secureendpoint.NewBuffer()
	src.Append([]byte(*message))

	wdone := make(chan error, 1)
	ep.Write(src, func(err error) { wdone <- err }, secureendpoint.WriteArgs{})
	if err := <-wdone; err != nil {
		logger.Fatal("write", zap.Error(err))
	}

	dst := secureendpoint.NewBuffer()
	rdone := make(chan error, 1)
	ep.Read(dst, func(err error) { rdone <- err }, true)
	if err := <-rdone; err != nil {
		logger.Fatal("read", zap.Error(err))
	}

	var reply []byte
	for i := 0; i < dst.Count(); i++ {
		reply = append(reply, dst.At(i)...)
	}
	fmt.Fprintf(os.Stdout, "%s\n", reply)
}

func buildLogger(debug bool) *zap.Logger {
	if debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("build logger: %v", err)
		}
		return l
	}
	l, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	return l
}

// Command secureep-echo-server accepts connections, serving each on its own
// goroutine, and echoes back whatever plaintext it decrypts, as a minimal exercise of
// secureendpoint end to end over a real net.Conn.
package main

import (
	"flag"
	"log"
	"net"

	"go.uber.org/zap"

	"github.com/bifurcation/secureendpoint"
	"github.com/bifurcation/secureendpoint/framer/aead"
	"github.com/bifurcation/secureendpoint/internal/demo"
	"github.com/bifurcation/secureendpoint/internal/wrapped"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4443", "address to listen on")
	psk := flag.String("psk", "secureendpoint-demo-psk", "pre-shared passphrase used to derive frame keys")
	zeroCopy := flag.Bool("zero-copy", false, "use the zero-copy framer instead of the copying framer")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := buildLogger(*debug)
	defer logger.Sync()
	secureendpoint.SetDefaultLogger(logger)

	clientToServer, serverToClient, err := demo.DeriveKeys(*psk)
	if err != nil {
		logger.Fatal("derive keys", zap.Error(err))
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
	logger.Info("listening", zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Error("accept", zap.Error(err))
			return
		}
		go serve(conn, logger, *zeroCopy, clientToServer, serverToClient)
	}
}

func serve(conn net.Conn, logger *zap.Logger, zeroCopy bool, clientToServer, serverToClient [32]byte) {
	label := "server:" + conn.RemoteAddr().String()

	framer, err := buildFramer(zeroCopy, serverToClient[:], clientToServer[:])
	if err != nil {
		logger.Error("build framer", zap.String("label", label), zap.Error(err))
		conn.Close()
		return
	}

	ep, err := secureendpoint.New(secureendpoint.Config{
		Framer:  framer,
		Wrapped: wrapped.New(conn, logger, label),
		Logger:  logger,
		Label:   label,
	})
	if err != nil {
		logger.Error("new endpoint", zap.String("label", label), zap.Error(err))
		conn.Close()
		return
	}
	defer ep.Destroy()

	for {
		dst := secureendpoint.NewBuffer()
		done := make(chan error, 1)
		ep.Read(dst, func(err error) { done <- err }, false)
		if err := <-done; err != nil {
			logger.Info("connection closed", zap.String("label", label), zap.Error(err))
			return
		}

		src := secureendpoint.NewBuffer()
		for i := 0; i < dst.Count(); i++ {
			src.Append(dst.At(i))
		}

		wdone := make(chan error, 1)
		ep.Write(src, func(err error) { wdone <- err }, secureendpoint.WriteArgs{})
		if err := <-wdone; err != nil {
			logger.Info("write failed", zap.String("label", label), zap.Error(err))
			return
		}
	}
}

func buildFramer(zeroCopy bool, sendKey, recvKey []byte) (secureendpoint.Framer, error) {
	if zeroCopy {
		return aead.NewZeroCopy(sendKey, recvKey, 0)
	}
	return aead.NewCopying(sendKey, recvKey, 0)
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

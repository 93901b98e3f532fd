// Command bootlog captures the device's debug serial line: it puts the tty
// into raw mode and re-logs every newline-terminated line with a host-side
// timestamp. The device never reads back; this is capture only.
package main

import (
	"bufio"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

func main() {
	dev := flag.String("dev", "/dev/ttyUSB0", "serial device to capture")
	baud := flag.Int("baud", 115200, "baud rate")

	flag.Parse()

	speed, ok := baudRates[*baud]
	if !ok {
		log.Fatalln("unsupported baud rate:", *baud)
	}

	fd, err := unix.Open(*dev, unix.O_RDONLY|unix.O_NOCTTY, 0)
	if err != nil {
		log.Fatalln(err)
	}
	defer unix.Close(fd)

	if err := setRaw(fd, speed); err != nil {
		log.Fatalln(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	logger.Info("capturing", "dev", *dev, "baud", *baud)

	scanner := bufio.NewScanner(os.NewFile(uintptr(fd), *dev))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		logger.Info("serial", "line", line)
	}

	if err := scanner.Err(); err != nil {
		log.Fatalln(err)
	}
}

// setRaw configures 8N1 raw mode with no flow control at the given speed.
func setRaw(fd int, speed uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	t.Cflag &^= unix.CBAUD
	t.Cflag |= speed
	t.Ispeed = speed
	t.Ospeed = speed

	/* Block until at least one byte is available. */
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rrflink/sbcd/pkg/protocol"
	"github.com/rrflink/sbcd/pkg/wire"
)

// iapSegmentSize is the chunk size sbcctl splits a firmware image into;
// it stays well under wire's transfer size so an upload segment always
// fits in one host-originated packet alongside whatever else is queued.
const iapSegmentSize = 2048

var (
	flashDevice string
	flashGPIO   string
	flashSpeed  int
)

var flashCmd = &cobra.Command{
	Use:   "flash <firmware-image>",
	Short: "Upload a firmware image over SPI via IAP (sbcd must not be running)",
	Long: `flash opens the SPI device directly, the same way sbcd does, and
drives the firmware's in-application-programming sequence. It does not
go through the IPC socket: IAP needs exclusive use of the SPI link, so
sbcd must be stopped first.`,
	Args: cobra.ExactArgs(1),
	RunE: runFlash,
}

func init() {
	flashCmd.Flags().StringVar(&flashDevice, "spi-device", "/dev/spidev0.0", "SPI device to upload over")
	flashCmd.Flags().StringVar(&flashGPIO, "ready-gpio-chip", "/sys/class/gpio/gpio25", "data-ready GPIO path")
	flashCmd.Flags().IntVar(&flashSpeed, "speed-hz", 8_000_000, "SPI clock speed")
}

// iapHandler implements protocol.Handler, caring only about the one
// reply IAP upload produces: the firmware's acknowledgement of the
// segment offset it just wrote and whether it considers the image
// complete.
type iapHandler struct {
	acked chan protocol.RequestCode
	final chan bool
}

func newIAPHandler() *iapHandler {
	return &iapHandler{acked: make(chan protocol.RequestCode, 1), final: make(chan bool, 1)}
}

func (h *iapHandler) OnReportState(uint32)                                   {}
func (h *iapHandler) OnObjectModel(uint8, []byte)                            {}
func (h *iapHandler) OnCodeReply(protocol.ReplyFlags, protocol.ChannelMask, string) {}
func (h *iapHandler) OnExecuteMacro(uint8, string, bool)                     {}
func (h *iapHandler) OnAbortFile(uint8)                                      {}
func (h *iapHandler) OnStackEvent(uint8, uint8, uint32, float64)             {}
func (h *iapHandler) OnPrintPaused(int64, protocol.PauseReason)              {}
func (h *iapHandler) OnHeightMap([]byte)                                     {}
func (h *iapHandler) OnLocked(uint8)                                         {}
func (h *iapHandler) OnVariableResult(string, string, string)                {}
func (h *iapHandler) OnEvaluationResult(string, string)                      {}
func (h *iapHandler) OnIAPSegment(offset uint32, final bool) {
	select {
	case h.final <- final:
	default:
	}
}

func runFlash(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("sbcctl: reading firmware image: %w", err)
	}

	tx, err := wire.OpenLinuxSPI(flashDevice, flashSpeed, 8192, flashGPIO)
	if err != nil {
		return fmt.Errorf("sbcctl: opening SPI transport: %w", err)
	}
	defer tx.Close()

	link := wire.NewLink(tx, wire.MinimumSupportedProtocolVersion, wire.CurrentProtocolVersion, 3)
	handler := newIAPHandler()
	machine := protocol.NewMachine(link, handler)

	ctx := context.Background()
	if err := machine.Handshake(ctx); err != nil {
		return fmt.Errorf("sbcctl: handshake: %w", err)
	}

	fmt.Printf("uploading %d bytes in %d-byte segments\n", len(data), iapSegmentSize)
	for offset := 0; offset < len(data); offset += iapSegmentSize {
		end := offset + iapSegmentSize
		if end > len(data) {
			end = len(data)
		}
		final := end == len(data)

		if _, err := machine.WriteIAPUpload(uint32(offset), data[offset:end], final); err != nil {
			return fmt.Errorf("sbcctl: writing segment at %d: %w", offset, err)
		}
		if err := pumpUntilAcked(ctx, machine, handler); err != nil {
			return fmt.Errorf("sbcctl: segment at %d: %w", offset, err)
		}
		fmt.Printf("\r%d/%d bytes", end, len(data))
	}
	fmt.Println("\nupload complete")
	return nil
}

func pumpUntilAcked(ctx context.Context, machine *protocol.Machine, handler *iapHandler) error {
	const maxPumps = 200
	for i := 0; i < maxPumps; i++ {
		select {
		case <-handler.final:
			return nil
		default:
		}
		if err := machine.Tick(ctx); err != nil {
			return err
		}
	}
	return fmt.Errorf("segment acknowledgement did not arrive after %d round trips", maxPumps)
}

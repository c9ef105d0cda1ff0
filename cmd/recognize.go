package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <video>",
	Short: "Take attendance from a classroom video",
	Long: `Sample frames of a video, recognize enrolled students and print who was present.

Examples:
  # Attendance for class 7A
  face-attendance recognize lesson.mp4 --class 7A

  # Machine-readable report
  face-attendance recognize lesson.mp4 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("class", "", "Only match students of this class")
	recognizeCmd.Flags().Bool("json", false, "Print the report as JSON")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Recognizing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	report, err := a.service.Process(ctx, recognition.VideoInput{
		Data:     f,
		Filename: filepath.Base(args[0]),
		ClassID:  mustGetString(cmd, "class"),
		Progress: func(frameIndex, total int) {
			if total > 0 && bar.GetMax() != total {
				bar.ChangeMax(total)
			}
			bar.Set(frameIndex + 1)
		},
	})
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return printJSON(report)
	}

	fmt.Printf("Video %s: %d of %d frames analyzed, %d faces detected in %.1fs\n",
		report.VideoID, report.ProcessedFrames, report.TotalFrames, report.TotalFacesDetected, report.ProcessingTime)
	if len(report.RecognizedStudents) == 0 {
		fmt.Println("No enrolled students recognized.")
		return nil
	}
	fmt.Printf("Present (%d):\n", report.UniqueStudentsIdentified)
	for _, s := range report.RecognizedStudents {
		first := s.Detections[0]
		fmt.Printf("  %-12s %-30s %3d detections, confidence %.2f, first seen at %.1fs\n",
			s.StudentID, s.StudentName, s.DetectionCount, s.Confidence, first.Timestamp)
	}
	return nil
}

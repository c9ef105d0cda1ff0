package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <student-id> <image>...",
	Short: "Enroll a student from reference photos",
	Long: `Detect the face in each photo, archive the crop and store its embedding.
Photos without a usable face are skipped. Enrolling again appends to the
student's existing reference faces.

Examples:
  # Enroll a student with three photos
  face-attendance enroll s-1024 front.jpg left.jpg right.jpg --name "Jan Novák" --class 7A`,
	Args: cobra.RangeArgs(2, 11),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Student display name")
	enrollCmd.Flags().String("class", "", "Class the student belongs to")
	enrollCmd.Flags().Bool("json", false, "Print the result as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	images := make([][]byte, 0, len(args)-1)
	for _, path := range args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		images = append(images, data)
	}

	result, err := a.service.Enroll(ctx, recognition.EnrollRequest{
		StudentID: args[0],
		Name:      mustGetString(cmd, "name"),
		ClassID:   mustGetString(cmd, "class"),
		Images:    images,
	})
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return printJSON(result)
	}

	fmt.Println(result.Message)
	for i, q := range result.QualityScores {
		fmt.Printf("  face %d: quality %.2f (%s)\n", i+1, q, result.ArchiveBackends[i])
	}
	for _, s := range result.Skipped {
		fmt.Printf("  skipped %s: %s\n", args[1+s.Index], s.Reason)
	}
	if !result.Success {
		return fmt.Errorf("student %s was not enrolled", args[0])
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

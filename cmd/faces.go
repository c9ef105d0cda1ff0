package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <student-id> <image>",
	Short: "Check whether a photo shows the given student",
	Long: `Compare the single face in a photo with the student's reference faces.
Photos with no face or more than one face are rejected.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "List the enrolled students closest to the face in a photo",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentify,
}

func init() {
	rootCmd.AddCommand(verifyCmd, identifyCmd)

	identifyCmd.Flags().Int("limit", 0, "Number of candidates (defaults to IDENTIFY_LIMIT)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[1], err)
	}

	result, err := a.service.Verify(ctx, args[0], data)
	if err != nil {
		return err
	}
	if result.Match {
		fmt.Printf("Match: %s (distance %.3f, confidence %.2f)\n", result.StudentID, result.Distance, result.Confidence)
	} else {
		fmt.Printf("No match: %s (distance %.3f)\n", result.StudentID, result.Distance)
	}
	return nil
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	limit := mustGetInt(cmd, "limit")
	if limit <= 0 {
		limit = a.cfg.Recognition.IdentifyLimit
	}

	a.enableHNSW(ctx)
	candidates, err := a.service.Identify(ctx, data, limit)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("No enrolled students")
		return nil
	}
	for i, c := range candidates {
		mark := " "
		if c.Recognized {
			mark = "*"
		}
		fmt.Printf("%s %d. %-12s %-30s distance %.3f\n", mark, i+1, c.StudentID, c.StudentName, c.Distance)
	}
	return nil
}

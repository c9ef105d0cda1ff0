package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/names"
	"github.com/spf13/cobra"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Manage enrolled students",
}

var studentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List students and their number of reference faces",
	Args:  cobra.NoArgs,
	RunE:  runStudentsList,
}

var studentsFacesCmd = &cobra.Command{
	Use:   "faces <student-id>",
	Short: "Show the reference faces of a student",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentsFaces,
}

var studentsDeleteCmd = &cobra.Command{
	Use:   "delete <student-id>",
	Short: "Delete all reference faces and archived crops of a student",
	Args:  cobra.ExactArgs(1),
	RunE:  runStudentsDelete,
}

func init() {
	rootCmd.AddCommand(studentsCmd)
	studentsCmd.AddCommand(studentsListCmd, studentsFacesCmd, studentsDeleteCmd)

	studentsListCmd.Flags().String("class", "", "Only list students of this class")
	studentsListCmd.Flags().String("search", "", "Filter by name (diacritics-insensitive)")
}

func runStudentsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	classID := mustGetString(cmd, "class")
	query := mustGetString(cmd, "search")

	enrolled, err := a.roster.FetchEnrolled(ctx, classID)
	if err != nil {
		return fmt.Errorf("failed to list students: %w", err)
	}

	shown := 0
	for _, s := range enrolled {
		if !names.Matches(s.Name, query) {
			continue
		}
		fmt.Printf("%-12s %-30s %-6s %2d faces\n", s.ID, s.Name, s.ClassID, len(s.Embeddings))
		shown++
	}
	fmt.Printf("%d students\n", shown)
	return nil
}

func runStudentsFaces(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	faces, err := a.service.Embeddings(ctx, args[0])
	if err != nil {
		return err
	}
	if len(faces) == 0 {
		fmt.Printf("Student %s has no reference faces\n", args[0])
		return nil
	}
	for _, f := range faces {
		fmt.Printf("#%-6d quality %.2f  %s\n", f.ID, f.Quality, f.ImageURL)
	}
	return nil
}

func runStudentsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.service.DeleteAll(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d reference faces of %s\n", n, args[0])
	return nil
}

package analysis

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
)

const notFinished = "SCF analysis not finished yet."

// Summary returns the user-facing summary of the run in extraDir. The SCF
// program output is echoed line by line without interpretation.
func Summary(extraDir string) ([]string, error) {
	lines, err := readLines(filepath.Join(extraDir, LogName))
	if errors.Is(err, os.ErrNotExist) {
		return []string{notFinished}, nil
	}
	if err != nil {
		return nil, err
	}

	status, ok, err := ReadStatus(extraDir)
	if err != nil {
		return nil, err
	}
	if !ok || !status.Finished {
		return append([]string{notFinished, "Captured SCF output:"}, lines...), nil
	}
	return append([]string{"SCF analysis output summary:"}, lines...), nil
}

// Methods describes how the results were obtained.
func Methods(extraDir string) ([]string, error) {
	status, ok, err := ReadStatus(extraDir)
	if err != nil {
		return nil, err
	}
	if !ok || !status.Finished {
		return []string{notFinished}, nil
	}
	return []string{
		"SCF analysis completed using the Baldwin and Lyumkis method. Output information is contained " +
			"in the summary and in the plot image of the results.",
	}, nil
}

// References lists the publications describing the SCF method.
func References() []string {
	return []string{
		"Baldwin, P. R. and Lyumkis, D. (2020). Non-uniformity of projection distributions attenuates " +
			"resolution in Cryo-EM. Progress in Biophysics and Molecular Biology, 150, 160-183.",
		"Baldwin, P. R. and Lyumkis, D. (2021). Tools for visualizing and analyzing Fourier space " +
			"sampling in Cryo-EM. Progress in Biophysics and Molecular Biology, 160, 53-65.",
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

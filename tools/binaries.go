package main

import (
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// BinaryInfo describes one checked binary dependency
type BinaryInfo struct {
	Name         string
	Path         string
	Version      string
	IsAvailable  bool
	ErrorMessage string
}

// BinaryValidator checks the audio pipeline's subprocess dependencies
type BinaryValidator struct {
	ffmpegPath string
	ytdlpPath  string
}

// NewBinaryValidator creates a validator for the configured binary paths
func NewBinaryValidator(ffmpegPath, ytdlpPath string) *BinaryValidator {
	return &BinaryValidator{
		ffmpegPath: ffmpegPath,
		ytdlpPath:  ytdlpPath,
	}
}

// ValidateAll checks both binaries and returns the per-binary details plus
// an aggregated error when anything is missing or too old.
func (bv *BinaryValidator) ValidateAll() ([]*BinaryInfo, error) {
	infos := []*BinaryInfo{bv.ValidateFFmpeg(), bv.ValidateYtDlp()}

	var problems []string
	for _, info := range infos {
		if !info.IsAvailable {
			problems = append(problems, info.ErrorMessage)
		}
	}
	if len(problems) > 0 {
		return infos, fmt.Errorf("binary validation failed:\n%s", strings.Join(problems, "\n"))
	}
	return infos, nil
}

// ValidateFFmpeg checks ffmpeg availability and version compatibility
func (bv *BinaryValidator) ValidateFFmpeg() *BinaryInfo {
	info := &BinaryInfo{Name: "ffmpeg", Path: bv.ffmpegPath}

	fullPath, err := exec.LookPath(bv.ffmpegPath)
	if err != nil {
		info.ErrorMessage = fmt.Sprintf("ffmpeg not found at %q: %v (install it with your package manager, e.g. apt install ffmpeg)", bv.ffmpegPath, err)
		return info
	}
	info.Path = fullPath

	version, err := ffmpegVersion(fullPath)
	if err != nil {
		info.ErrorMessage = fmt.Sprintf("ffmpeg found at %q but version check failed: %v", fullPath, err)
		return info
	}
	info.Version = version

	if err := checkFFmpegVersion(version); err != nil {
		info.ErrorMessage = err.Error()
		return info
	}

	info.IsAvailable = true
	return info
}

// ValidateYtDlp checks yt-dlp availability and version compatibility
func (bv *BinaryValidator) ValidateYtDlp() *BinaryInfo {
	info := &BinaryInfo{Name: "yt-dlp", Path: bv.ytdlpPath}

	fullPath, err := exec.LookPath(bv.ytdlpPath)
	if err != nil {
		info.ErrorMessage = fmt.Sprintf("yt-dlp not found at %q: %v (install it with pip install yt-dlp)", bv.ytdlpPath, err)
		return info
	}
	info.Path = fullPath

	version, err := ytdlpVersion(fullPath)
	if err != nil {
		info.ErrorMessage = fmt.Sprintf("yt-dlp found at %q but version check failed: %v", fullPath, err)
		return info
	}
	info.Version = version

	if err := checkYtDlpVersion(version); err != nil {
		info.ErrorMessage = err.Error()
		return info
	}

	info.IsAvailable = true
	return info
}

var ffmpegVersionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

func ffmpegVersion(binaryPath string) (string, error) {
	output, err := exec.Command(binaryPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to execute ffmpeg -version: %w", err)
	}

	matches := ffmpegVersionRe.FindStringSubmatch(string(output))
	if len(matches) < 2 {
		return "", fmt.Errorf("could not parse version from ffmpeg output")
	}
	return matches[1], nil
}

func ytdlpVersion(binaryPath string) (string, error) {
	output, err := exec.Command(binaryPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to execute yt-dlp --version: %w", err)
	}

	version := strings.TrimSpace(string(output))
	if version == "" {
		return "", fmt.Errorf("yt-dlp returned empty version")
	}
	return version, nil
}

// checkFFmpegVersion requires ffmpeg 4.0 or newer. Handles version strings
// like "4.4.2-0ubuntu0.22.04.1" and "n7.1.1".
func checkFFmpegVersion(version string) error {
	major := strings.Split(strings.Split(version, ".")[0], "-")[0]
	major = strings.TrimPrefix(major, "n")

	n, err := strconv.Atoi(major)
	if err != nil {
		return fmt.Errorf("could not parse major version from ffmpeg %q", version)
	}
	if n < 4 {
		return fmt.Errorf("ffmpeg %s is too old, 4.0 or newer is required", version)
	}
	return nil
}

// checkYtDlpVersion requires a 2022 or newer build. yt-dlp versions are
// date-based, e.g. "2023.07.06".
func checkYtDlpVersion(version string) error {
	parts := strings.Split(version, ".")
	if len(parts) < 3 {
		return fmt.Errorf("unexpected yt-dlp version format %q", version)
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Errorf("could not parse year from yt-dlp version %q", version)
	}
	if year < 2022 {
		return fmt.Errorf("yt-dlp %s is too old, a 2022 or newer build is required", version)
	}
	return nil
}

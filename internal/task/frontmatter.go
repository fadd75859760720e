package task

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// SplitFrontmatter separates a markdown document into its YAML frontmatter and
// body. A document that does not start with "---" has no frontmatter.
func SplitFrontmatter(content []byte) (front []byte, body string, err error) {
	reader := bufio.NewReader(bytes.NewReader(content))

	firstLine, err := reader.ReadString('\n')
	if strings.TrimSpace(firstLine) != "---" {
		return nil, strings.TrimSpace(string(content)), nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("unterminated frontmatter")
	}

	var fm bytes.Buffer
	for {
		line, rerr := reader.ReadString('\n')
		if strings.TrimSpace(line) == "---" {
			break
		}
		if rerr != nil {
			return nil, "", fmt.Errorf("unterminated frontmatter")
		}
		fm.WriteString(line)
	}

	var rest bytes.Buffer
	if _, err := rest.ReadFrom(reader); err != nil {
		return nil, "", err
	}
	return fm.Bytes(), strings.TrimSpace(rest.String()), nil
}

// DecodeFrontmatter unmarshals the frontmatter of content into out and returns
// the trimmed body.
func DecodeFrontmatter(content []byte, out any) (string, error) {
	front, body, err := SplitFrontmatter(content)
	if err != nil {
		return "", err
	}
	if len(bytes.TrimSpace(front)) == 0 {
		return body, nil
	}
	if err := yaml.Unmarshal(front, out); err != nil {
		return "", fmt.Errorf("invalid frontmatter: %w", err)
	}
	return body, nil
}

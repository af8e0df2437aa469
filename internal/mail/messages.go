package mail

import "fmt"

const brand = "HackIFM"

// Message is a rendered plain-text email.
type Message struct {
	Subject string
	Body    string
}

func SignupOTP(name, otp string, validMinutes int) Message {
	return Message{
		Subject: brand + " - Verify Your Email",
		Body: fmt.Sprintf(`Hi %s,

Your verification code is: %s

It expires in %d minutes. Never share this code with anyone. %s will never ask for it.
`, name, otp, validMinutes, brand),
	}
}

func PasswordResetOTP(name, otp string, validMinutes int) Message {
	return Message{
		Subject: brand + " - Password Reset OTP",
		Body: fmt.Sprintf(`Hi %s,

Use this code to reset your password: %s

It expires in %d minutes. If you did not request a reset, ignore this email.
`, name, otp, validMinutes),
	}
}

package verify

// Built-in texts used when a guild has not configured its own templates, plus
// the fixed notices of the flow. Kept byte-compatible with the messages the
// bot has always sent.
const (
	defaultStartMessage = "The server you just joined requires manual verification.\n\n" +
		"**Just reply me with the characters displayed below. (case-sensitive)**"

	defaultSuccessMessage = "Good Job! You have been verified!\n\n" +
		"**I have given you the role `{verified_role_name}`**"

	startTitle   = "Verification Required"
	successTitle = "Verification Successful"

	timeoutTitle = "Verification Timed Out"
	timeoutText  = "Oops! Seems like you didn't respond in time.\n\n" +
		"But, It's fine! You can start the verification process again using the command `verify`"

	failTitle  = "Verification Failed"
	failText   = "Oh no! That's not the correct answer!\n\n**Would you like to try again?**"
	failFooter = "Reply back with Y or N"

	farewellText = "Bye! You can start the verification process again using the command `verify`"

	dmStartAck = "Starting verification process in DM's..."

	reactionPointer = "Verification method is set to reaction.\n" +
		"Please react to verification message in order to continue verification process."

	alreadyVerifiedText = "You are already verified!"

	roleNotSetText = "Verified role is not set. Please contact the server admins."

	channelNotSetText = "Verification channel is not configured. Please contact the server admins."

	unexpectedErrorText = "An unexpected error occurred during verification. The bot owner has been notified."

	promptFooter = "This prompt will timeout in 60 secs"
)
